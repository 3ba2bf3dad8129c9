package preprocessor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// PDF price lists go through a simpler extractor than workbooks: text lines
// are split on tab stops or wide space runs into pseudo-columns, and the
// resulting grid is scanned with the adaptive cell classifiers. Only
// text-bearing PDFs are supported; image-only scans need OCR, which lives
// outside this pipeline.

var (
	pdfTextLiteral = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj`)
	columnSplit    = regexp.MustCompile(`\t+| {2,}`)
)

// ProcessPDF extracts product/price tuples from a PDF byte stream, yielding
// the same result shape as workbook processing.
func (p *Preprocessor) ProcessPDF(ctx context.Context, r io.Reader) *Result {
	data, err := io.ReadAll(r)
	if err != nil {
		return &Result{ParseError: fmt.Sprintf("read pdf: %v", err)}
	}

	var lines []string
	if bytes.HasPrefix(data, []byte("%PDF")) {
		lines = pdfTextLines(data)
		if len(lines) == 0 {
			return &Result{ParseError: "pdf has no extractable text"}
		}
	} else {
		// Pre-extracted text dumps are accepted directly.
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return &Result{ParseError: fmt.Sprintf("scan pdf text: %v", err)}
		}
	}

	grid := make([][]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		grid = append(grid, columnSplit.Split(line, -1))
	}

	return p.ProcessRows(ctx, "pdf", grid)
}

// pdfTextLines pulls literal text strings out of uncompressed content
// streams. Each Tj show-text operator contributes one cell; operators on the
// same source line stay on one row.
func pdfTextLines(data []byte) []string {
	var lines []string
	for _, raw := range bytes.Split(data, []byte("\n")) {
		matches := pdfTextLiteral.FindAllSubmatch(raw, -1)
		if len(matches) == 0 {
			continue
		}
		parts := make([]string, 0, len(matches))
		for _, m := range matches {
			parts = append(parts, unescapePDFString(string(m[1])))
		}
		lines = append(lines, strings.Join(parts, "\t"))
	}
	return lines
}

func unescapePDFString(s string) string {
	replacer := strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`, `\n`, " ", `\t`, "\t")
	return replacer.Replace(s)
}
