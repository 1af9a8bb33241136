package version

import (
	"regexp"
	"strings"
	"testing"
)

// semverRegex validates semantic versioning format
var semverRegex = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

func TestVersionConstants(t *testing.T) {
	tests := []struct {
		name    string
		version string
	}{
		{"Framework", Framework},
		{"Schema", Schema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.version == "" {
				t.Errorf("%s version is empty", tt.name)
			}
			if !semverRegex.MatchString(tt.version) {
				t.Errorf("%s version %q does not match semver format (x.y.z)", tt.name, tt.version)
			}
		})
	}
}

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Framework {
		t.Errorf("Version = %q, want %q", info.Version, Framework)
	}
	if info.GoVersion == "" {
		t.Error("GoVersion is empty")
	}
	if s := info.String(); !strings.HasPrefix(s, "villain "+Framework) {
		t.Errorf("String() = %q", s)
	}
}
