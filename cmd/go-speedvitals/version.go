package main

import (
	"runtime/debug"
	"strings"
)

// Build-time variables injected via ldflags
//
//nolint:gochecknoglobals // These are build-time injected variables
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// shortCommitLength is how much of a VCS revision is shown
const shortCommitLength = 7

// BuildInfo describes the running binary. Values injected via ldflags win;
// otherwise they come from the module and VCS data embedded by the Go toolchain.
type BuildInfo struct {
	version   string
	commit    string
	buildDate string
	modified  bool
}

// NewBuildInfo collects build information for the running binary
func NewBuildInfo() *BuildInfo {
	bi := &BuildInfo{
		version:   orDefault(Version, "dev"),
		commit:    orDefault(Commit, "none"),
		buildDate: orDefault(BuildDate, "unknown"),
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return bi
	}

	if bi.version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		bi.version = strings.TrimPrefix(info.Main.Version, "v")
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if bi.commit == "none" && setting.Value != "" {
				bi.commit = setting.Value
				if len(bi.commit) > shortCommitLength {
					bi.commit = bi.commit[:shortCommitLength]
				}
			}
		case "vcs.time":
			if bi.buildDate == "unknown" && setting.Value != "" {
				bi.buildDate = setting.Value
			}
		case "vcs.modified":
			bi.modified = setting.Value == "true"
		}
	}

	return bi
}

// Version returns the version string
func (b *BuildInfo) Version() string {
	return b.version
}

// Commit returns the commit the binary was built from
func (b *BuildInfo) Commit() string {
	return b.commit
}

// BuildDate returns when the binary was built
func (b *BuildInfo) BuildDate() string {
	return b.buildDate
}

// IsModified reports whether the working tree had uncommitted changes at build time
func (b *BuildInfo) IsModified() bool {
	return b.modified
}

// orDefault replaces empty or unrendered template values, such as a release
// pipeline leaving "{{ .Version }}" behind
func orDefault(value, fallback string) string {
	if value == "" || isTemplateString(value) {
		return fallback
	}
	return value
}

// isTemplateString reports whether s still contains template markers
func isTemplateString(s string) bool {
	return strings.Contains(s, "{{") && strings.Contains(s, "}}")
}
