package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DataDir returns the directory holding kanaime's databases and engine
// files. $KANAIME_DATA_DIR overrides the platform default.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/kanaime/
//   - Linux:   ~/.local/share/kanaime/
//   - Windows: %APPDATA%\kanaime\
func DataDir() string {
	if envDir := os.Getenv("KANAIME_DATA_DIR"); envDir != "" {
		return envDir
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", "kanaime")
	case "windows":
		return windowsDataDir()
	default:
		return filepath.Join(xdgDataHome(), "kanaime")
	}
}

// ConfigDir returns the directory holding config.toml.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/kanaime/
//   - Linux:   ~/.config/kanaime/
//   - Windows: %APPDATA%\kanaime\
func ConfigDir() string {
	if envDir := os.Getenv("KANAIME_CONFIG_DIR"); envDir != "" {
		return envDir
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", "kanaime")
	case "windows":
		return windowsDataDir()
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, "kanaime")
		}
		return filepath.Join(homeDir(), ".config", "kanaime")
	}
}

func xdgDataHome() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return xdgData
	}
	return filepath.Join(homeDir(), ".local", "share")
}

func windowsDataDir() string {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "kanaime")
	}
	return filepath.Join(homeDir(), "AppData", "Roaming", "kanaime")
}

func homeDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return home
}

// SupportedConfigFormats lists the accepted config file extensions.
func SupportedConfigFormats() []string {
	return []string{"toml", "json", "yaml", "yml"}
}

// FindConfigFile searches the current directory, then ConfigDir, for a
// config file. It returns "" when none exists.
func FindConfigFile() string {
	for _, dir := range []string{".", ConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
