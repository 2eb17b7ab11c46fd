package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Build identity for the tacet binary, stamped via -ldflags at release
// time. Dev builds keep the defaults.
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the bare version string
func GetVersion() string {
	return Version
}

// GetBuild returns the build timestamp
func GetBuild() string {
	return Build
}

// GetGitCommit returns the short commit the binary was built from
func GetGitCommit() string {
	return GitCommit
}

// GetFullVersion returns the version with build and commit details,
// as shown in the banner and the status endpoint
func GetFullVersion() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", Version, Build, GitCommit)
}

// LoadVersionFromFile overrides Version from a .version file next to the
// executable when one is present. Deployments drop the file alongside the
// binary so the reported version survives rebuilds without ldflags.
func LoadVersionFromFile() string {
	exePath, err := os.Executable()
	if err != nil {
		return Version
	}

	exeDir := filepath.Dir(exePath)
	versionFile := filepath.Join(exeDir, ".version")

	data, err := os.ReadFile(versionFile)
	if err != nil {
		return Version
	}

	version := strings.TrimSpace(string(data))
	if version != "" {
		Version = version
	}

	return Version
}
