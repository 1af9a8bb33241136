package bundles

import (
	"strings"

	"golang.org/x/mod/semver"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// canonical turns "1.2" or "v1.2.0-rc1" into a semver string with the "v"
// prefix x/mod expects.
func canonical(v string) (string, error) {
	s := strings.TrimSpace(v)
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	if !semver.IsValid(s) {
		return "", verrors.Newf("invalid version %q", v).
			WithCode(verrors.CodeConfiguration).
			WithDetail("version", v)
	}
	return s, nil
}

// CompareVersions returns -1, 0 or 1 following semantic version ordering,
// so 1.0.0 < 1.0.1 < 2.0.0-rc1 < 2.0.0. Build metadata is ignored.
func CompareVersions(a, b string) (int, error) {
	ca, err := canonical(a)
	if err != nil {
		return 0, err
	}
	cb, err := canonical(b)
	if err != nil {
		return 0, err
	}
	return semver.Compare(ca, cb), nil
}

// ValidVersion reports whether v parses as a semantic version.
func ValidVersion(v string) bool {
	_, err := canonical(v)
	return err == nil
}
