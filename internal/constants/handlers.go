// Package constants provides shared constants used across the codebase.
package constants

// HTTP request constants
const (
	// MaxUploadSize is the maximum multipart image upload size in bytes (20MB)
	MaxUploadSize = 20 << 20

	// MaxJSONBodySize is the maximum accepted JSON request body in bytes (1MB)
	MaxJSONBodySize = 1 << 20

	// MaxDescriptorLength rejects absurd descriptors before they reach the matcher
	MaxDescriptorLength = 4096
)
