package ingestion

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// TextExtractor turns an uploaded payload into the plain text used for grounding.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

func extractorFor(format DocumentFormat) (TextExtractor, bool) {
	switch format {
	case FormatPDF:
		return pdfExtractor{}, true
	case FormatMarkdown, FormatText:
		return plainExtractor{}, true
	case FormatCSV:
		return csvExtractor{}, true
	default:
		return nil, false
	}
}

type plainExtractor struct{}

func (plainExtractor) Extract(_ context.Context, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text payload is not valid UTF-8")
	}
	return normalizePlainText(string(data)), nil
}

// pdfExtractor reads page by page so one unreadable page does not lose the
// whole document.
type pdfExtractor struct{}

func (pdfExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	pages := make([]string, 0, reader.NumPage())
	var firstErr error
	for n := 1; n <= reader.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("page %d: %w", n, err)
			}
			continue
		}
		if text = normalizePlainText(text); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 && firstErr != nil {
		return "", fmt.Errorf("extract pdf text: %w", firstErr)
	}
	return strings.Join(pages, "\n\n"), nil
}

// csvExtractor writes one line per record, pairing every value with its
// column name. Empty cells are dropped; cells beyond the header row get a
// positional name.
type csvExtractor struct{}

func (csvExtractor) Extract(_ context.Context, data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("parse csv header: %w", err)
	}
	columns := make([]string, len(header))
	for i, name := range header {
		columns[i] = columnName(name, i)
	}

	var out strings.Builder
	out.WriteString("Columns: " + strings.Join(columns, ", "))
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse csv: %w", err)
		}
		if row := renderRecord(columns, record); row != "" {
			fmt.Fprintf(&out, "\nRow %d: %s", line, row)
		}
	}
	return out.String(), nil
}

func columnName(name string, idx int) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return fmt.Sprintf("column %d", idx+1)
}

func renderRecord(columns, record []string) string {
	cells := make([]string, 0, len(record))
	for i, value := range record {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		name := fmt.Sprintf("column %d", i+1)
		if i < len(columns) {
			name = columns[i]
		}
		cells = append(cells, name+"="+value)
	}
	return strings.Join(cells, "; ")
}

// normalizePlainText unifies line endings, strips trailing whitespace and
// collapses runs of blank lines to one.
func normalizePlainText(content string) string {
	content = strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(content)

	var out strings.Builder
	blank := 0
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if line == "" {
			blank++
			continue
		}
		if out.Len() > 0 {
			if blank > 0 {
				out.WriteString("\n\n")
			} else {
				out.WriteString("\n")
			}
		}
		blank = 0
		out.WriteString(line)
	}
	return strings.TrimSpace(out.String())
}
