package log

import (
	"os"
	"path/filepath"
	"runtime"
)

// getDefaultDir places logs beside the config file, except on macOS where
// ~/Library/Logs is where Console looks for them.
func getDefaultDir() (string, error) {
	if runtime.GOOS == "darwin" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Logs", "pulse"), nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "pulse", "logs"), nil
}
