package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Discover lists the data files under folder, optionally walking into
// subdirectories. The result is sorted case-insensitively by path so runs
// process files in a deterministic order.
func Discover(folder string, recursive bool) ([]string, error) {
	info, err := os.Stat(folder)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", folder, ErrNotFound)
		}
		return nil, fmt.Errorf("stat %s: %w", folder, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory: %w", folder, ErrNotFound)
	}

	var files []string

	if recursive {
		err = filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if IsDataFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", folder, err)
		}
	} else {
		entries, err := os.ReadDir(folder)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", folder, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(folder, entry.Name())
			if IsDataFile(path) {
				files = append(files, path)
			}
		}
	}

	sort.Slice(files, func(i, j int) bool {
		a, b := strings.ToLower(files[i]), strings.ToLower(files[j])
		if a != b {
			return a < b
		}
		return files[i] < files[j]
	})

	return files, nil
}
