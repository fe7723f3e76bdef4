package storage

import (
	"mime"
	"path/filepath"
	"strings"
)

func init() {
	// The platform's primary formats; the mime package doesn't know epub
	// on every system.
	_ = mime.AddExtensionType(".epub", "application/epub+zip")
	_ = mime.AddExtensionType(".pdf", "application/pdf")
}

// DetectContentType determines the MIME type for a stored object.
//
// Detection priority:
// 1. If providedType is non-empty, use it directly
// 2. Look up the key's file extension
// 3. Fall back to "application/octet-stream"
func DetectContentType(providedType, key string) string {
	if providedType != "" {
		return providedType
	}
	ext := strings.ToLower(filepath.Ext(key))
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}
	return "application/octet-stream"
}

// AllowedContentTypes defines the MIME types accepted for content ingest.
var AllowedContentTypes = map[string]bool{
	"application/pdf":      true,
	"application/epub+zip": true,
}

// IsAllowedContentType checks if a content type may be ingested into the
// reading catalog.
func IsAllowedContentType(contentType string) bool {
	return AllowedContentTypes[baseType(contentType)]
}

// IsPDF returns true if the content type is a PDF document.
func IsPDF(contentType string) bool {
	return baseType(contentType) == "application/pdf"
}

// IsEPUB returns true if the content type is an EPUB package.
func IsEPUB(contentType string) bool {
	return baseType(contentType) == "application/epub+zip"
}

// baseType strips parameters (e.g. charset) and normalizes case.
func baseType(contentType string) string {
	base := strings.Split(contentType, ";")[0]
	return strings.TrimSpace(strings.ToLower(base))
}
