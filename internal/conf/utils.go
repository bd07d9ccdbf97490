// conf/utils.go various util functions for configuration package
package conf

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/soundprint/soundprint/internal/errors"
)

// OS name constants for runtime.GOOS comparisons.
const (
	osWindows = "windows"
)

// GetDefaultConfigPaths returns a list of default configuration paths for the
// current operating system. If a config.yaml file is found in any of the
// paths, only that path is returned.
func GetDefaultConfigPaths() ([]string, error) {
	var configPaths []string

	// Fetch the user's home directory.
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	// Define default paths based on the operating system.
	switch runtime.GOOS {
	case osWindows:
		exePath, err := os.Executable()
		if err != nil {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategorySystem).
				Context("operation", "get-executable-path").
				Build()
		}
		configPaths = []string{
			".",
			filepath.Dir(exePath),
			filepath.Join(homeDir, "AppData", "Roaming", "soundprint"),
		}
	default:
		configPaths = []string{
			".",
			filepath.Join(homeDir, ".config", "soundprint"),
			"/etc/soundprint",
		}
	}

	// Check if config.yaml exists in any of the paths
	for _, path := range configPaths {
		configFile := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configFile); err == nil {
			return []string{path}, nil
		}
	}

	// If no config.yaml is found, return all paths
	return configPaths, nil
}

// FindConfigFile locates the configuration file.
func FindConfigFile() (string, error) {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "find-config-paths").
			Build()
	}

	for _, path := range configPaths {
		configFilePath := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configFilePath); err == nil {
			return configFilePath, nil
		}
	}

	return "", errors.Newf("config file not found").
		Component("conf").
		Category(errors.CategoryFileIO).
		Context("operation", "find-config-file").
		Build()
}

// GetBasePath expands environment variables in the given path, cleans it and
// ensures the resulting directory exists.
func GetBasePath(path string) string {
	expandedPath := os.ExpandEnv(path)
	basePath := filepath.Clean(expandedPath)

	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		if err := os.MkdirAll(basePath, 0o750); err != nil {
			slog.Warn("failed to create directory", "path", basePath, "error", err)
		}
	}

	return basePath
}

// GetFfmpegBinaryName returns the binary name for ffmpeg based on the current OS.
func GetFfmpegBinaryName() string {
	if runtime.GOOS == osWindows {
		return "ffmpeg.exe"
	}
	return "ffmpeg"
}

// GetFfprobeBinaryName returns the binary name for ffprobe based on the current OS.
func GetFfprobeBinaryName() string {
	if runtime.GOOS == osWindows {
		return "ffprobe.exe"
	}
	return "ffprobe"
}

// GetFpcalcBinaryName returns the binary name for chromaprint fpcalc based on the current OS.
func GetFpcalcBinaryName() string {
	if runtime.GOOS == osWindows {
		return "fpcalc.exe"
	}
	return "fpcalc"
}

// GetOlafBinaryName returns the binary name for the olaf fingerprinter based on the current OS.
func GetOlafBinaryName() string {
	if runtime.GOOS == osWindows {
		return "olaf_c.exe"
	}
	return "olaf_c"
}

// IsFfmpegAvailable checks if ffmpeg is available in the system PATH.
func IsFfmpegAvailable() bool {
	_, err := exec.LookPath(GetFfmpegBinaryName())
	return err == nil
}

// IsFfprobeAvailable checks if ffprobe is available in the system PATH.
func IsFfprobeAvailable() bool {
	_, err := exec.LookPath(GetFfprobeBinaryName())
	return err == nil
}

// ValidateToolPath checks if a tool is available, either at an explicit path
// or in the system PATH. It returns the resolved path to the tool if found.
func ValidateToolPath(configuredPath, toolName string) (string, error) {
	if configuredPath != "" && configuredPath != toolName {
		// Check if the explicitly configured path exists and is a file
		if info, err := os.Stat(configuredPath); err == nil && !info.IsDir() {
			return configuredPath, nil
		}
		// If configured path is invalid, check PATH as a fallback
		slog.Warn("configured tool path invalid or not found, checking system PATH",
			"configured_path", configuredPath,
			"tool", toolName)
	}

	pathFromLookPath, err := exec.LookPath(toolName)
	if err == nil {
		return pathFromLookPath, nil
	}

	if configuredPath != "" {
		return "", fmt.Errorf("tool '%s' not found at configured path '%s' or in system PATH", toolName, configuredPath)
	}
	return "", fmt.Errorf("tool '%s' not found in system PATH and no path configured", toolName)
}
