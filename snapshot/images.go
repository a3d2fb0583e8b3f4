package snapshot

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/poiesic/policykb/core"
)

// DefaultImagePattern matches the image files a scraper saves next to content.md.
const DefaultImagePattern = `^[\w.-]+\.(?i:png|jpe?g|gif|webp|svg)$`

// CompileImagePattern compiles pattern, falling back to DefaultImagePattern when empty.
func CompileImagePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		pattern = DefaultImagePattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("image pattern: %w", err)
	}
	return re, nil
}

// ScanImages returns one image reference per regular file in folder whose
// name matches pattern, ordered by filename. File contents are not read.
func ScanImages(folder Folder, pattern *regexp.Regexp) ([]*core.Image, error) {
	entries, err := os.ReadDir(folder.Path)
	if err != nil {
		return nil, err
	}

	var images []*core.Image
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !pattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		images = append(images, &core.Image{
			Filename:     entry.Name(),
			RelativePath: folder.Name + "/" + entry.Name(),
			ContentType:  mime.TypeByExtension(strings.ToLower(filepath.Ext(entry.Name()))),
			Size:         info.Size(),
		})
	}
	return images, nil
}
