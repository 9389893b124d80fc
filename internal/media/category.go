package media

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Category groups stored media. It is also the first path segment of the
// public URL.
type Category string

const (
	CategoryCV       Category = "cv"
	CategoryAudio    Category = "audios"
	CategoryVideo    Category = "videos"
	CategoryReceipts Category = "receipts"
)

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/ogg",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".amr":  "audio/amr",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".3gp":  "video/3gpp",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

var extensions = map[string]string{
	"application/pdf": ".pdf",
	"audio/ogg":       ".ogg",
	"audio/opus":      ".ogg",
	"audio/mpeg":      ".mp3",
	"audio/mp4":       ".m4a",
	"audio/aac":       ".aac",
	"audio/amr":       ".amr",
	"video/mp4":       ".mp4",
	"video/3gpp":      ".3gp",
	"video/quicktime": ".mov",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
}

// ContentType derives a MIME type from a file name. Only the media kinds the
// bot stores are known; the host's mime tables are not consulted.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// Extension returns the file extension for a provider MIME type such as
// "audio/ogg; codecs=opus".
func Extension(mimeType string) string {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	}
	if ext, ok := extensions[base]; ok {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(base); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// ObjectName builds a unique, time-sortable file name for stored media.
func ObjectName(prefix, mimeType string) string {
	return prefix + "_" + strings.ToLower(ulid.Make().String()) + Extension(mimeType)
}

// CategoryFor picks the storage category of a recorded answer.
func CategoryFor(mimeType string) Category {
	if strings.HasPrefix(strings.ToLower(mimeType), "video/") {
		return CategoryVideo
	}
	return CategoryAudio
}
