// Package buildinfo contains build-time metadata separate from user configuration
package buildinfo

// BuildInfo provides an interface for accessing build-time metadata.
// This interface makes testing easier and allows for different implementations.
type BuildInfo interface {
	// GetVersion returns the build version string
	GetVersion() string
	// GetGitSHA returns the git commit the binary was built from
	GetGitSHA() string
	// GetBuildDate returns the build date string
	GetBuildDate() string
}

// Context contains build-time metadata that is not user-configurable.
// This data is injected at application startup through main's ldflags
// variables and should not be part of the configuration system.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// GitSHA holds the abbreviated commit hash from build
	GitSHA string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// GetVersion implements BuildInfo.GetVersion
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return "unknown"
	}
	return c.Version
}

// GetGitSHA implements BuildInfo.GetGitSHA
func (c *Context) GetGitSHA() string {
	if c == nil || c.GitSHA == "" {
		return "unknown"
	}
	return c.GitSHA
}

// GetBuildDate implements BuildInfo.GetBuildDate
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return "unknown"
	}
	return c.BuildDate
}
