package utils

import (
	"mime"
	"path/filepath"
	"regexp"
	"strings"
)

const maxFilenameLen = 120

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._ -]+`)

// SanitizeFilename keeps letters, digits, dot, dash, underscore and space.
func SanitizeFilename(name string) string {
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Join(strings.Fields(name), " ")
	name = strings.Trim(name, " ._-")
	if len(name) > maxFilenameLen {
		name = strings.TrimRight(name[:maxFilenameLen], " ._-")
	}
	return name
}

// SuggestedFilename builds a download name from a title and the artifact's extension.
func SuggestedFilename(title, path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	base := SanitizeFilename(title)
	if base == "" {
		base = SanitizeFilename(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}
	if base == "" {
		base = "download"
	}
	return base + ext
}

// ContentTypeFor guesses a MIME type from the file extension.
func ContentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	}
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}
