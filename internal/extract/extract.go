// Package extract turns raw file bytes into plain text.
//
// Dispatch is two-tier: content that is already text (by MIME type or
// extension) is decoded directly as UTF-8, everything else goes through a
// structured-document extractor keyed by extension. Unrecognized formats
// fail with a deterministic unsupported-file-type error instead of being
// fed to a parser that cannot handle them.
package extract

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"code.sajari.com/docconv"

	"github.com/fathom-labs/corpus/internal/domain"
)

var plainTextMimePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^text/`),
	regexp.MustCompile(`(?i)^application/(json|xml|csv|yaml|x-yaml|javascript|typescript)$`),
}

var plainTextExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".json": true,
	".xml":  true,
	".csv":  true,
	".yaml": true,
	".yml":  true,
	".js":   true,
	".ts":   true,
}

// structuredMimeTypes maps the extensions the structured extractor
// understands to the MIME type docconv expects.
var structuredMimeTypes = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".odt":  "application/vnd.oasis.opendocument.text",
	".rtf":  "application/rtf",
	".pdf":  "application/pdf",
}

// IsPlainTextMimeType reports whether the MIME type denotes content that
// can be decoded directly as UTF-8.
func IsPlainTextMimeType(mimeType string) bool {
	if mimeType == "" {
		return false
	}
	for _, pattern := range plainTextMimePatterns {
		if pattern.MatchString(mimeType) {
			return true
		}
	}
	return false
}

// IsPlainTextExtension reports whether the filename's extension is in the
// known plain-text set.
func IsPlainTextExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return plainTextExtensions[ext]
}

// Text extracts plain text from buf.
//
// Plain-text content (by MIME type or extension) is returned as-is;
// office documents and PDFs are parsed with docconv. Anything else fails
// with an UNSUPPORTED_FILE_TYPE domain error.
func Text(buf []byte, filename, mimeType string) (string, error) {
	if IsPlainTextMimeType(mimeType) || IsPlainTextExtension(filename) {
		return string(buf), nil
	}
	return structuredText(buf, filename)
}

func structuredText(buf []byte, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	mimeType, ok := structuredMimeTypes[ext]
	if !ok {
		return "", domain.NewDomainError(
			domain.ErrCodeUnsupportedFile,
			fmt.Sprintf("unsupported file type: %s", ext),
		)
	}

	res, err := docconv.Convert(bytes.NewReader(buf), mimeType, false)
	if err != nil {
		return "", domain.NewDomainErrorWithCause(
			domain.ErrCodeInternalError,
			fmt.Sprintf("failed to extract text from %s", filename),
			err,
		)
	}

	return res.Body, nil
}
