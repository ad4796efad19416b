package app

import (
	"log"
	"mime"
)

func init() {
	// Minimal containers ship without /etc/mime.types.
	ensureMimeType(".jpg", "image/jpeg")
	ensureMimeType(".jpeg", "image/jpeg")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("app: failed to register MIME type for %s: %v", ext, err)
	}
}
