// Package util - Helpers for offline evaluation runs.
package util

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ImageFile is one image read from disk for an evaluation run.
type ImageFile struct {
	// Path is the file's location on disk.
	Path string
	// Data is the raw encoded bytes, ready for the data pipeline's
	// collate step.
	Data []byte
	// Index orders the file within its directory. Files named with a
	// trailing number (frame-0017.jpg) sort by that number; the rest
	// sort by name after them.
	Index int
}

var trailingNumber = regexp.MustCompile(`\d+$`)

// LoadDirectoryImageFiles reads every supported image file in a directory,
// ordered by frame number when file names carry one.
func LoadDirectoryImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var images []ImageFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".gif":
		default:
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		images = append(images, ImageFile{
			Path:  path,
			Data:  data,
			Index: frameIndex(entry.Name()),
		})
	}

	sort.Slice(images, func(i, j int) bool {
		if images[i].Index != images[j].Index {
			return images[i].Index < images[j].Index
		}
		return images[i].Path < images[j].Path
	})
	return images, nil
}

// frameIndex extracts a trailing number from the base file name, or a
// sentinel that sorts un-numbered files last.
func frameIndex(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	m := trailingNumber.FindString(base)
	if m == "" {
		return int(^uint(0) >> 1)
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}
