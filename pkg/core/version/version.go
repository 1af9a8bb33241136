// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     version
// Description: Release and build information
// License:     MIT
// ============================================================================

package version

import (
	"fmt"
	"runtime"
)

// Release versions
const (
	// Framework is the version of the Villain core bundle
	Framework = "0.3.0"

	// Schema is bumped whenever stored documents change shape
	Schema = "1.0.0"
)

// Set through -ldflags "-X github.com/villain-cms/villain/pkg/core/version.Commit=..."
var (
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info describes the running binary
type Info struct {
	Version   string `json:"version"`
	Schema    string `json:"schema"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// Get returns the build information
func Get() Info {
	return Info{
		Version:   Framework,
		Schema:    Schema,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

// String formats the build information on one line
func (i Info) String() string {
	return fmt.Sprintf("villain %s (schema %s, commit %s, built %s, %s)",
		i.Version, i.Schema, i.Commit, i.BuildDate, i.GoVersion)
}
