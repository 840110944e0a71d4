package core

import (
	"context"
	"io"
)

// ExtractedText is the plain text pulled out of an uploaded document.
type ExtractedText struct {
	Text     string
	FileType string
	Metadata map[string]string
}

// DocumentExtractor turns an uploaded file into plain text.
type DocumentExtractor interface {
	// Extract picks the parser from the file name extension.
	Extract(ctx context.Context, r io.Reader, filename string) (*ExtractedText, error)
}
