package importer

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// audioExtensions is the import allowlist. Extensions are matched
// case-insensitively against the lowercased file extension.
var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".wav":  {},
	".aiff": {},
	".m4a":  {},
	".flac": {},
	".aac":  {},
}

// IsAudioFile reports whether the path carries an importable audio extension.
func IsAudioFile(path string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ScanFolder walks the tree rooted at root and returns the audio files found,
// in enumeration order. Hidden entries (dot-prefixed files and directories)
// are skipped entirely, including their subtrees. Unreadable subtrees are
// skipped rather than failing the scan.
func ScanFolder(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && IsAudioFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
