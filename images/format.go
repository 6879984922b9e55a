package images

import "strings"

// ImageFormat represents supported encoded image formats.
type ImageFormat string

const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
)

// FormatFromExtension maps a file extension (with or without the dot) to a format.
func FormatFromExtension(ext string) (ImageFormat, bool) {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg", "jpg", "jpeg":
		return FormatJPEG, true
	case ".png", "png":
		return FormatPNG, true
	case ".webp", "webp":
		return FormatWebP, true
	default:
		return "", false
	}
}
