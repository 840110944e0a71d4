package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/smartbot/internal/core"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrExtraction        = errors.New("text extraction failed")
)

// supported maps accepted extensions to the mime type docconv dispatches on.
var supported = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".doc":  "application/msword",
}

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
type DocconvExtractor struct {
	useReadability bool
	convert        func(r io.Reader, mimeType string, readability bool) (*docconv.Response, error)
}

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability, convert: docconv.Convert}
}

// FileType returns the lower-case extension without the dot, or an error for
// anything but PDF and Word documents.
func FileType(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := supported[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return strings.TrimPrefix(ext, "."), nil
}

func (e *DocconvExtractor) Extract(ctx context.Context, r io.Reader, filename string) (*core.ExtractedText, error) {
	fileType, err := FileType(filename)
	if err != nil {
		return nil, err
	}

	res, err := e.convert(r, supported["."+fileType], e.useReadability)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExtraction, filename, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := normalize(res.Body)
	if text == "" {
		return nil, fmt.Errorf("%w: %s: no text found", ErrExtraction, filename)
	}

	return &core.ExtractedText{Text: text, FileType: fileType, Metadata: res.Meta}, nil
}

// normalize trims every line and drops blank ones.
func normalize(body string) string {
	lines := strings.Split(body, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
