package constants

import (
	"mime"
	"strings"
)

// DocumentKind is the declared shape of an inbound document.
type DocumentKind string

const (
	KindImage     DocumentKind = "image"
	KindPaginated DocumentKind = "paginated"
)

// AllowedExtensions holds the file extensions accepted for invoice intake.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
}

// supportedMediaTypes holds the declared media types accepted for intake.
var supportedMediaTypes = map[string]struct{}{
	"application/pdf": {},
	"image/jpeg":      {},
	"image/jpg":       {},
	"image/png":       {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether ext (with or without the dot) can be ingested.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}

// IsSupported reports whether a document declared with mimeType, or with
// extension ext when mimeType is empty, can be rasterized.
func IsSupported(mimeType, ext string) bool {
	if mimeType == "" {
		return IsAllowedExt(ext)
	}
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	_, ok := supportedMediaTypes[mt]
	return ok
}

// KindFor classifies a document by its declared media type, falling back to
// the file extension when the media type is empty.
func KindFor(mimeType, ext string) DocumentKind {
	if mimeType != "" {
		if strings.Contains(strings.ToLower(mimeType), "pdf") {
			return KindPaginated
		}
		return KindImage
	}
	if NormalizeExt(ext) == "pdf" {
		return KindPaginated
	}
	return KindImage
}

// Extension returns the canonical file extension for stored documents of kind k.
func (k DocumentKind) Extension() string {
	if k == KindPaginated {
		return ".pdf"
	}
	return ".jpg"
}

// Valid reports whether k is a known kind.
func (k DocumentKind) Valid() bool {
	return k == KindImage || k == KindPaginated
}
