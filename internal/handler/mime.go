package handler

import (
	"mime"
	"strings"
)

// ContentTypeFunc maps a file extension, including the leading dot, to a
// Content-Type value. It must be pure.
type ContentTypeFunc func(ext string) string

const defaultContentType = "application/octet-stream"

// ContentTypeByExtension is the default lookup backed by the system MIME table.
func ContentTypeByExtension(ext string) string {
	if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
		return t
	}
	return defaultContentType
}
