//go:build !js

package paths

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// getPossiblePathDirs lists the directories Find searches, in order.
func getPossiblePathDirs() []string {
	var dirs []string
	if home := os.Getenv(EnvHome); home != "" {
		dirs = append(dirs, home)
	}
	dirs = append(dirs, ".")
	if cfg, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(cfg, "roclient"))
	}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	return dirs
}

func findImp(fileName string) string {
	for _, dir := range getPossiblePathDirs() {
		path := filepath.Join(dir, fileName)
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			return path
		}
	}
	return ""
}

func openImp(fileName string) (io.ReadCloser, error) {
	path := findImp(fileName)
	if path == "" {
		return nil, errors.Wrapf(os.ErrNotExist, "paths.Open(%q)", fileName)
	}
	return os.Open(path)
}
