// Package ingestion extracts text from uploaded files and persists documents
// for grounding.
package ingestion

import (
	"bytes"
	"path/filepath"
	"sort"
	"strings"
)

type DocumentFormat string

const (
	FormatUnknown  DocumentFormat = ""
	FormatPDF      DocumentFormat = "pdf"
	FormatMarkdown DocumentFormat = "markdown"
	FormatText     DocumentFormat = "text"
	FormatCSV      DocumentFormat = "csv"
)

var formatsByExtension = map[string]DocumentFormat{
	".pdf":      FormatPDF,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".txt":      FormatText,
	".text":     FormatText,
	".csv":      FormatCSV,
}

var pdfMagic = []byte("%PDF-")

// DetectFormat resolves the format from the file extension. Payloads carrying
// the PDF signature are PDF regardless of name.
func DetectFormat(name string, data []byte) DocumentFormat {
	if bytes.HasPrefix(data, pdfMagic) {
		return FormatPDF
	}
	return formatsByExtension[strings.ToLower(filepath.Ext(name))]
}

// SupportedExtensions lists accepted extensions, sorted, for error messages.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(formatsByExtension))
	for ext := range formatsByExtension {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
