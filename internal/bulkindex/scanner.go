package bulkindex

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultMaxFileBytes matches the largest code body the service accepts.
const DefaultMaxFileBytes = 1 << 20

var languages = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".kt":    "kotlin",
	".rs":    "rust",
	".rb":    "ruby",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".cs":    "csharp",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".sql":   "sql",
}

var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
}

// LanguageFor maps a file extension to a language name; unknown extensions return "".
func LanguageFor(path string) string {
	return languages[strings.ToLower(filepath.Ext(path))]
}

// SourceFile is a candidate for indexing.
type SourceFile struct {
	Path     string // absolute
	RelPath  string // slash separated, relative to the scan root
	Language string
	Hash     string
	Code     string
}

// Scan walks root and returns the recognised source files sorted by RelPath.
// Hidden entries, dependency directories and files over maxBytes are skipped.
func Scan(root string, maxBytes int64) ([]SourceFile, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	var out []SourceFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !d.Type().IsRegular() {
			return nil
		}
		lang := LanguageFor(name)
		if lang == "" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() == 0 || info.Size() > maxBytes {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(data)
		out = append(out, SourceFile{
			Path:     path,
			RelPath:  filepath.ToSlash(rel),
			Language: lang,
			Hash:     hex.EncodeToString(sum[:]),
			Code:     string(data),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out, nil
}
