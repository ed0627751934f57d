package pipeline

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	"github.com/klauspost/compress/zstd"
	pdf "github.com/ledongthuc/pdf"
	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"

	"shadeqc/internal"
	"shadeqc/internal/util"
)

const (
	InputCSV  = "csv"
	InputXLSX = "xlsx"
	InputHTML = "html"
	InputPDF  = "pdf"
	InputEML  = "eml"
)

// minHeaderFields is how many recognised columns a row needs before a
// spreadsheet, HTML or PDF table is treated as inspection data.
const minHeaderFields = 2

// xlsxHeaderScan is how many leading rows of a sheet may hold the header.
const xlsxHeaderScan = 3

var ErrUnsupportedInput = errors.New("unsupported input type")

var compressionExts = map[string]bool{".gz": true, ".bz2": true, ".xz": true, ".zst": true, ".zstd": true}

// ParseRows turns an uncompressed document of the given type into raw rows.
func ParseRows(inputType string, blob []byte) ([]internal.RawRow, error) {
	switch inputType {
	case InputCSV:
		return parseCSV(blob)
	case InputXLSX:
		return parseXLSX(blob)
	case InputHTML:
		return parseHTMLTables(string(blob)), nil
	case InputPDF:
		return parsePDF(blob)
	case InputEML:
		ext, err := ExtractRowsFromEmailRaw(blob)
		if err != nil {
			return nil, err
		}
		return ext.Rows, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedInput, inputType)
	}
}

// ParseFile decompresses blob according to name, detects the document type
// from what is left of the name and parses it.
func ParseFile(name string, blob []byte) ([]internal.RawRow, error) {
	plain, inner, err := Decompress(name, blob)
	if err != nil {
		return nil, err
	}
	return ParseRows(DetectInputType(inner), plain)
}

// Decompress unwraps gzip, zstd, xz or bzip2 content when name carries the
// matching extension. It returns the content and the name without that
// extension.
func Decompress(name string, blob []byte) ([]byte, string, error) {
	lower := strings.ToLower(name)
	ext := path.Ext(lower)
	inner := name[:len(name)-len(ext)]

	var reader io.Reader
	switch ext {
	case ".gz":
		gz, err := gzip.NewReader(bytes.NewReader(blob))
		if err != nil {
			return nil, "", fmt.Errorf("gzip %s: %w", name, err)
		}
		defer gz.Close()
		reader = gz
	case ".bz2":
		reader = bzip2.NewReader(bytes.NewReader(blob))
	case ".xz":
		xr, err := xz.NewReader(bytes.NewReader(blob))
		if err != nil {
			return nil, "", fmt.Errorf("xz %s: %w", name, err)
		}
		reader = xr
	case ".zst", ".zstd":
		dec, err := zstd.NewReader(bytes.NewReader(blob))
		if err != nil {
			return nil, "", fmt.Errorf("zstd %s: %w", name, err)
		}
		defer dec.Close()
		reader = dec
	default:
		return blob, name, nil
	}

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("decompress %s: %w", name, err)
	}
	return out, inner, nil
}

// DetectInputType guesses the document type from a file name or URL path.
// Anything unrecognised is read as CSV.
func DetectInputType(name string) string {
	lower := strings.ToLower(name)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch path.Ext(lower) {
	case ".xlsx", ".xlsm":
		return InputXLSX
	case ".html", ".htm":
		return InputHTML
	case ".pdf":
		return InputPDF
	case ".eml":
		return InputEML
	default:
		return InputCSV
	}
}

func parseCSV(blob []byte) ([]internal.RawRow, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(blob, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var idx *ColumnIndex
	out := []internal.RawRow{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		// a blank line; a row of empty cells such as ",,," is still data
		if len(record) == 1 && util.IsBlank(record[0]) {
			continue
		}
		cells := trimCells(record)
		if idx == nil {
			built := BuildColumnIndex(cells)
			idx = &built
			continue
		}
		out = append(out, idx.Row(cells))
	}
	return out, nil
}

func parseXLSX(content []byte) ([]internal.RawRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		headerAt := -1
		var idx ColumnIndex
		for i := 0; i < len(rows) && i < xlsxHeaderScan; i++ {
			candidate := BuildColumnIndex(trimCells(rows[i]))
			if candidate.Recognized() >= minHeaderFields {
				headerAt, idx = i, candidate
				break
			}
		}
		if headerAt < 0 {
			continue
		}

		out := []internal.RawRow{}
		for _, row := range rows[headerAt+1:] {
			cells := trimCells(row)
			if allBlank(cells) {
				continue
			}
			out = append(out, idx.Row(cells))
		}
		return out, nil
	}
	return []internal.RawRow{}, nil
}

func parseHTMLTables(html string) []internal.RawRow {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	out := []internal.RawRow{}
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := table.Find("tr")
		if rows.Length() < 2 {
			return
		}

		idx := BuildColumnIndex(rowCells(rows.First()))
		if idx.Recognized() < minHeaderFields {
			return
		}

		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			cells := rowCells(row)
			if allBlank(cells) {
				return
			}
			out = append(out, idx.Row(cells))
		})
	})
	return out
}

func rowCells(row *goquery.Selection) []string {
	cells := []string{}
	row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
		cells = append(cells, util.NormalizeSpaces(cell.Text()))
	})
	return cells
}

// parsePDF reads the text layer, finds the first comma separated line that
// looks like a header and parses it and everything after it as CSV.
func parsePDF(content []byte) ([]internal.RawRow, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	lines := []string{}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		lines = append(lines, splitLines(text)...)
	}
	return rowsFromTextLines(lines)
}

func rowsFromTextLines(lines []string) ([]internal.RawRow, error) {
	for i, line := range lines {
		if BuildColumnIndex(trimCells(strings.Split(line, ","))).Recognized() < minHeaderFields {
			continue
		}
		return parseCSV([]byte(strings.Join(lines[i:], "\n")))
	}
	return []internal.RawRow{}, nil
}

type EmailExtraction struct {
	Rows            []internal.RawRow
	Subject         string
	Text            string
	HTML            string
	AttachmentNames []string
}

// ExtractRowsFromEmailRaw collects inspection rows from a raw RFC 822
// message: tabular attachments first, then tables in the HTML body.
func ExtractRowsFromEmailRaw(raw []byte) (EmailExtraction, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return EmailExtraction{}, err
	}

	ext := EmailExtraction{
		Rows:    []internal.RawRow{},
		Subject: env.GetHeader("Subject"),
		Text:    env.Text,
		HTML:    env.HTML,
	}
	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		ext.AttachmentNames = append(ext.AttachmentNames, filename)
		if !isTabularAttachment(filename) {
			continue
		}
		rows, err := ParseFile(filename, att.Content)
		if err != nil {
			continue
		}
		ext.Rows = append(ext.Rows, rows...)
	}
	if env.HTML != "" {
		ext.Rows = append(ext.Rows, parseHTMLTables(env.HTML)...)
	}
	if len(ext.Rows) == 0 && env.Text != "" {
		if rows, err := rowsFromTextLines(splitLines(env.Text)); err == nil {
			ext.Rows = rows
		}
	}
	return ext, nil
}

func isTabularAttachment(name string) bool {
	lower := strings.ToLower(name)
	if compressionExts[path.Ext(lower)] {
		lower = strings.TrimSuffix(lower, path.Ext(lower))
	}
	switch path.Ext(lower) {
	case ".csv", ".xlsx", ".xlsm", ".pdf", ".html", ".htm":
		return true
	}
	return false
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func trimCells(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func allBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
