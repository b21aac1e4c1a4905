package upstream

import "strings"

var extensionByMIME = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// IsImage reports whether mimeType names an image type.
func IsImage(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}

// ExtensionFor maps a MIME type to a file extension, defaulting to jpg.
func ExtensionFor(mimeType string) string {
	base := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	if ext, ok := extensionByMIME[base]; ok {
		return ext
	}
	return "jpg"
}
