// Package images identifies image payloads by their magic bytes.
package images

import "bytes"

// MaxUploadBytes caps meme image payloads at 10 MiB.
const MaxUploadBytes = 10 * 1024 * 1024

// ImageType describes a recognized image format.
type ImageType struct {
	Format string
	Ext    string
	magic  []byte
}

var imageTypes = []ImageType{
	{Format: "Windows Bitmap (BMP)", Ext: ".bmp", magic: []byte{0x42, 0x4d}},
	{Format: "Graphics Interchange Format (GIF)", Ext: ".gif", magic: []byte{0x47, 0x49, 0x46, 0x38}},
	{Format: "JPEG File Interchange Format", Ext: ".jpg", magic: []byte{0xff, 0xd8, 0xff}},
	{Format: "Portable Network Graphics (PNG)", Ext: ".png", magic: []byte{0x89, 0x50, 0x4e, 0x47}},
	{Format: "TIFF (big endian)", Ext: ".tif", magic: []byte{0x4d, 0x4d, 0x00, 0x2a}},
	{Format: "TIFF (little endian)", Ext: ".tif", magic: []byte{0x49, 0x49, 0x2a, 0x00}},
	{Format: "Windows Icon", Ext: ".ico", magic: []byte{0x00, 0x00, 0x01, 0x00}},
	{Format: "Windows Cursor", Ext: ".cur", magic: []byte{0x00, 0x00, 0x02, 0x00}},
	{Format: "Google WebP", Ext: ".webp", magic: []byte{0x52, 0x49, 0x46, 0x46}},
}

// ContentType returns the MIME type for the format.
func (it *ImageType) ContentType() string {
	switch it.Ext {
	case ".bmp":
		return "image/bmp"
	case ".gif":
		return "image/gif"
	case ".jpg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".tif":
		return "image/tiff"
	case ".ico", ".cur":
		return "image/x-icon"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Identify returns the image type matching the buffer's leading magic bytes,
// or nil when the format is not supported.
func Identify(buf []byte) *ImageType {
	for i := range imageTypes {
		it := &imageTypes[i]
		if len(buf) >= len(it.magic) && bytes.Equal(buf[:len(it.magic)], it.magic) {
			return it
		}
	}
	return nil
}
