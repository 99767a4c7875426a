package extractor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/courtside-labs/crm-sync/pkg/common/logger"
)

// Locator lists completed export artifacts in the download directory.
type Locator struct {
	dir string
	ext string
}

func NewLocator(dir string) *Locator {
	return &Locator{dir: dir, ext: ".csv"}
}

// List returns every export file in the directory, non-recursively, in
// directory order. No artifacts is an empty slice, not an error.
func (l *Locator) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("list artifacts in %s: %w", l.dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(entry.Name()), l.ext) {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		logger.Log.WithField("file", path).Info("Found export artifact")
		files = append(files, path)
	}
	if files == nil {
		files = []string{}
	}
	return files, nil
}
