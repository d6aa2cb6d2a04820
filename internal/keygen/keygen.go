// Package keygen derives hierarchical storage keys for uploaded objects.
//
// Single-shot objects get {category}/{module}/{yyyymmdd}/{id}{ext}; objects
// assembled from chunked uploads get {module}/{yyyymmdd}/{uploadID}{ext}.
// Keys are opaque to callers but kept human-readable for manual inspection,
// which is why the date segment uses the server's local time zone.
package keygen

import (
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Categories for the top-level key prefix, derived from the file extension.
const (
	CategoryImage   = "image"
	CategoryAudio   = "audio"
	CategoryVideo   = "video"
	CategoryGeneric = "file"
)

// DefaultExt substitutes for filenames without an extension.
const DefaultExt = ".bin"

// categoryByExt maps known lowercase extensions to their category.
var categoryByExt = map[string]string{
	".jpg": CategoryImage, ".jpeg": CategoryImage, ".png": CategoryImage,
	".gif": CategoryImage, ".bmp": CategoryImage, ".webp": CategoryImage,
	".svg": CategoryImage, ".ico": CategoryImage,

	".mp3": CategoryAudio, ".wav": CategoryAudio, ".aac": CategoryAudio,
	".ogg": CategoryAudio, ".m4a": CategoryAudio, ".flac": CategoryAudio,

	".mp4": CategoryVideo, ".avi": CategoryVideo, ".mov": CategoryVideo,
	".wmv": CategoryVideo, ".mkv": CategoryVideo, ".flv": CategoryVideo,
	".webm": CategoryVideo,

	".pdf": CategoryGeneric, ".doc": CategoryGeneric, ".docx": CategoryGeneric,
	".xls": CategoryGeneric, ".xlsx": CategoryGeneric, ".txt": CategoryGeneric,
	".zip": CategoryGeneric, ".rar": CategoryGeneric, ".7z": CategoryGeneric,
	".tar": CategoryGeneric, ".gz": CategoryGeneric,
}

// Ext extracts the lowercase extension from a filename, substituting
// DefaultExt when absent.
func Ext(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" || ext == "." {
		return DefaultExt
	}
	return ext
}

// Category classifies an extension into one of the four categories. Unknown
// extensions fall back to CategoryGeneric with a logged warning; classification
// never fails an upload.
func Category(ext string) string {
	if c, ok := categoryByExt[strings.ToLower(ext)]; ok {
		return c
	}
	slog.Warn("unrecognized file extension, storing as generic", "ext", ext)
	return CategoryGeneric
}

// Generate derives a storage key for a single-shot object:
// {category}/{module}/{yyyymmdd}/{122-bit-random-id}{ext}.
// Pure function of the wall-clock day, the random source, and its inputs.
func Generate(filename, module string) string {
	ext := Ext(filename)
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return Category(ext) + "/" + module + "/" + dateSegment() + "/" + id + ext
}

// ChunkKey derives a storage key for an object assembled from a chunked
// upload: {module}/{yyyymmdd}/{uploadID}{ext}. The upload id doubles as the
// object id so a retried merge lands on the same key.
func ChunkKey(uploadID, filename, module string) string {
	return module + "/" + dateSegment() + "/" + uploadID + Ext(filename)
}

func dateSegment() string {
	return time.Now().Format("20060102")
}
