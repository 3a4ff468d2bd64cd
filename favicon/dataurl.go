package favicon

import (
	"encoding/base64"
	"mime"
	"net/http"
	"strings"
)

// encodeDataURL packs an icon payload into a data: URL.
func encodeDataURL(mimeType string, body []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(body)
}

// iconMIME determines the image MIME type of a payload, preferring the
// declared Content-Type and falling back to content sniffing. Returns ""
// when the payload is not an image (HTML error pages served with 200 are
// the usual offender).
func iconMIME(contentType string, body []byte) string {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mt, "image/") {
			return mt
		}
	}
	// Sniffing covers png/jpeg/gif/webp/bmp/ico but not SVG, which is why
	// the declared header is checked first.
	if mt := http.DetectContentType(body); strings.HasPrefix(mt, "image/") {
		return mt
	}
	return ""
}
