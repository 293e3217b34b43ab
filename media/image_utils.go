package media

import (
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// decoder name -> canonical content type
var supportedFormats = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"webp": "image/webp",
}

var supportedImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// IsRasterImage checks if the filename has a common raster image extension
func IsRasterImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedImageExtensions[ext]
}

// IsSupportedFormat reports whether a decoder name is accepted for upload.
func IsSupportedFormat(format string) bool {
	_, ok := supportedFormats[format]
	return ok
}

// ContentTypeForFormat maps a decoder name to its MIME type.
func ContentTypeForFormat(format string) string {
	if ct, ok := supportedFormats[format]; ok {
		return ct
	}
	return "application/octet-stream"
}
