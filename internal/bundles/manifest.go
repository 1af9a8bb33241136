package bundles

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// ManifestFile is the name of the manifest inside a bundle directory.
const ManifestFile = "bundle.yaml"

// Manifest is the YAML form of a specification:
//
//	name: BasicBlog
//	version: 1.0.0
//	description: A simple blog
//	provides: [blog]
//	conflicts: [OtherBlog]
//	depends:
//	  Core: {min: 1.0.0, max: 2.0.0, not: [1.5.0]}
type Manifest struct {
	Name        string                    `yaml:"name"`
	Version     string                    `yaml:"version"`
	Description string                    `yaml:"description,omitempty"`
	Provides    []string                  `yaml:"provides,omitempty"`
	Conflicts   []string                  `yaml:"conflicts,omitempty"`
	Depends     map[string]ManifestDepend `yaml:"depends,omitempty"`
}

// ManifestDepend is one dependency entry of a manifest.
type ManifestDepend struct {
	Min string   `yaml:"min,omitempty"`
	Max string   `yaml:"max,omitempty"`
	Not []string `yaml:"not,omitempty"`
}

// Specification converts the manifest.
func (mf *Manifest) Specification() (*Specification, error) {
	if !ValidName(mf.Name) {
		return nil, verrors.Newf("invalid bundle name %q", mf.Name).
			WithCode(verrors.CodeConfiguration).
			WithDetail("bundle", mf.Name)
	}
	if mf.Version != "" && !ValidVersion(mf.Version) {
		return nil, verrors.Newf("bundle %q has invalid version %q", mf.Name, mf.Version).
			WithCode(verrors.CodeConfiguration).
			WithDetail("bundle", mf.Name)
	}

	spec := NewSpecification(mf.Name).Version(mf.Version).Describe(mf.Description)
	for _, v := range mf.Provides {
		spec.Provides(v)
	}
	for _, c := range mf.Conflicts {
		spec.IncompatibleWith(c)
	}
	for name, d := range mf.Depends {
		spec.DependsOn(name, d.Min, d.Max, d.Not...)
	}
	return spec, nil
}

// ParseManifest decodes a manifest.
func ParseManifest(data []byte) (*Specification, error) {
	var mf Manifest
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, verrors.Wrap(err, "parse bundle manifest").WithCode(verrors.CodeConfiguration)
	}
	return mf.Specification()
}

// LoadManifest reads <dir>/<name>/bundle.yaml. The manifest's name must
// match the directory.
func LoadManifest(dir, name string) (*Specification, error) {
	if !ValidName(name) {
		return nil, verrors.Newf("bundle must have a valid name, got %q", name).
			WithCode(verrors.CodeConfiguration).
			WithDetail("bundle", name)
	}
	path := filepath.Join(dir, name, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, verrors.Wrapf(err, "read manifest of bundle %q", name).
			WithCode(verrors.CodeConfiguration).
			WithDetail("path", path)
	}
	spec, err := ParseManifest(data)
	if err != nil {
		return nil, verrors.Wrapf(err, "bundle %q", name).WithDetail("path", path)
	}
	if spec.Name() != name {
		return nil, verrors.Newf("manifest %s declares bundle %q", path, spec.Name()).
			WithCode(verrors.CodeConfiguration).
			WithDetail("bundle", name)
	}
	return spec, nil
}

// LoadManifests loads the named bundles from dir. With no names, every
// subdirectory holding a manifest is loaded.
func LoadManifests(dir string, names []string) ([]*Specification, error) {
	if len(names) == 0 {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, verrors.Wrap(err, "list bundle directory").
				WithCode(verrors.CodeConfiguration).
				WithDetail("path", dir)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if _, err := os.Stat(filepath.Join(dir, e.Name(), ManifestFile)); err == nil {
				names = append(names, e.Name())
			}
		}
	}

	specs := make([]*Specification, 0, len(names))
	for _, name := range names {
		spec, err := LoadManifest(dir, name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
