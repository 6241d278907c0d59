package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/afero"
)

// FileNames are the configuration file names Discover looks for, in order.
var FileNames = []string{
	"eventrouter.jsonc",
	"eventrouter.json",
	"eventrouter.yaml",
	"eventrouter.yml",
}

// Dir returns the user configuration directory (~/.config/eventrouter).
func Dir() string {
	return filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "eventrouter")
}

// Discover returns the first configuration file found in directory and then
// in Dir(). It returns "" when there is none.
func Discover(directory string) string {
	return DiscoverFS(afero.NewOsFs(), directory)
}

// DiscoverFS is Discover looking in fsys.
func DiscoverFS(fsys afero.Fs, directory string) string {
	var dirs []string
	if directory != "" {
		dirs = append(dirs, directory)
	}
	dirs = append(dirs, Dir())

	for _, d := range dirs {
		for _, name := range FileNames {
			p := filepath.Join(d, name)
			if info, err := fsys.Stat(p); err == nil && !info.IsDir() {
				return p
			}
		}
	}
	return ""
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}
