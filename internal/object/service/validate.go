package service

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	objectdomain "github.com/billflow/billflow/internal/object/domain"
)

// Executables and scripts are rejected outright; everything else must be on
// the allow list.
var blockedExtensions = map[string]struct{}{
	".exe": {}, ".bat": {}, ".sh": {}, ".cmd": {}, ".ps1": {},
	".php": {}, ".py": {}, ".rb": {}, ".js": {}, ".jar": {},
	".msi": {}, ".dll": {}, ".vbs": {}, ".scr": {},
}

var allowedExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
	".txt": {}, ".csv": {}, ".json": {}, ".xml": {},
	".mp4": {}, ".mp3": {}, ".zip": {}, ".tar": {}, ".gz": {},
}

func validateFilename(filename string) error {
	if filename == "" {
		return objectdomain.ErrNoFilename
	}
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
		return objectdomain.ErrUnsafeFilename
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if _, blocked := blockedExtensions[ext]; blocked {
		return objectdomain.ErrBlockedExtension
	}
	if _, allowed := allowedExtensions[ext]; !allowed {
		return objectdomain.ErrUnknownExtension
	}
	return nil
}

var (
	unsafeChars = regexp.MustCompile(`[^\w\-.]`)
	underscores = regexp.MustCompile(`_+`)
)

// sanitizeFilename keeps the name readable while stripping anything the
// object store or a download header could choke on.
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	name := strings.TrimSuffix(filename, ext)
	name = unsafeChars.ReplaceAllString(name, "_")
	name = underscores.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	return name + strings.ToLower(ext)
}

// formatBytes renders a human-readable size, e.g. 1536 -> "1.50 KB".
func formatBytes(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%d B", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.2f KB", float64(size)/1024)
	case size < 1024*1024*1024:
		return fmt.Sprintf("%.2f MB", float64(size)/(1024*1024))
	default:
		return fmt.Sprintf("%.2f GB", float64(size)/(1024*1024*1024))
	}
}
