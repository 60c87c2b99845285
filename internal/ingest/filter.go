package ingest

import (
	"path"
	"strings"
)

// skipExtensions are file types that never carry ingestable text: binaries,
// media, archives and machine-generated lock formats.
var skipExtensions = map[string]bool{
	".png":   true,
	".jpg":   true,
	".jpeg":  true,
	".gif":   true,
	".svg":   true,
	".ico":   true,
	".webp":  true,
	".pdf":   true,
	".zip":   true,
	".tar":   true,
	".gz":    true,
	".woff":  true,
	".woff2": true,
	".ttf":   true,
	".eot":   true,
	".mp3":   true,
	".mp4":   true,
	".mov":   true,
	".exe":   true,
	".dll":   true,
	".so":    true,
	".dylib": true,
	".bin":   true,
	".pyc":   true,
	".class": true,
	".o":     true,
	".a":     true,
	".lock":  true,
	".min":   true,
}

// skipFilenames are dependency manifests and lockfiles whose content is
// machine-managed noise for code search.
var skipFilenames = map[string]bool{
	"package-lock.json": true,
	"yarn.lock":         true,
	"pnpm-lock.yaml":    true,
	"poetry.lock":       true,
	"Pipfile.lock":      true,
	"Cargo.lock":        true,
	"composer.lock":     true,
	"Gemfile.lock":      true,
	"go.sum":            true,
	".gitignore":        true,
	".gitattributes":    true,
	".editorconfig":     true,
	".DS_Store":         true,
}

// skipDirectories are vendored or generated trees, skipped at any depth.
var skipDirectories = map[string]bool{
	"node_modules": true,
	".git":         true,
	".github":      true,
	"venv":         true,
	".venv":        true,
	"__pycache__":  true,
	"vendor":       true,
	"build":        true,
	"dist":         true,
	"target":       true,
	"coverage":     true,
	".idea":        true,
	".vscode":      true,
}

// shouldSkip reports whether a tree path is excluded from ingestion, with a
// short reason for logging.
func shouldSkip(filePath string) (bool, string) {
	for _, seg := range strings.Split(path.Dir(filePath), "/") {
		if skipDirectories[seg] {
			return true, "excluded directory " + seg
		}
	}

	base := path.Base(filePath)
	if skipFilenames[base] {
		return true, "excluded filename"
	}

	ext := strings.ToLower(path.Ext(base))
	if ext == "" {
		return true, "no extension"
	}
	if skipExtensions[ext] {
		return true, "excluded extension " + ext
	}
	return false, ""
}

// languageOf maps a file path to its language tag, the extension without
// the leading dot.
func languageOf(filePath string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(filePath)), ".")
}
