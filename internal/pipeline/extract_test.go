package pipeline

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"
)

const sampleCSV = "\uFEFFDate,Roll ID,Buyer,Supplier,Quantity (m),DeltaE,Shade Group,Verdict,Image\n" +
	"2026-01-05,R1,Zara,Arvind Mills,120,0.8,,,\n" +
	"\n" +
	",,,,,,,,\n" +
	"2026-01-06,\"R,3\",H&M,Welspun,\"1,200\",3.4,D,REJECT,img/r3.jpg\n"

func mkXLSX(rows [][]any) []byte {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func TestParseCSV(t *testing.T) {
	rows, err := parseCSV([]byte(sampleCSV))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("len=%d", len(rows))
	}
	if rows[0]["Date"] != "2026-01-05" || rows[0]["Supplier"] != "Arvind Mills" {
		t.Fatalf("row0=%v", rows[0])
	}
	if rows[1]["Roll ID"] != "" {
		t.Fatalf("empty row=%v", rows[1])
	}
	if rows[2]["Roll ID"] != "R,3" || rows[2]["Quantity (m)"] != "1,200" {
		t.Fatalf("row2=%v", rows[2])
	}

	recs := Normalizer{Today: fixedToday}.Normalize(rows)
	if recs[1].ID != "csv-1" || recs[1].RollNo != "UNK-1" || recs[1].Supplier != "Not Entered" {
		t.Fatalf("blank-line numbering: %+v", recs[1])
	}
	if recs[2].Quantity != 1200 || recs[2].Shade != "D" {
		t.Fatalf("rec2=%+v", recs[2])
	}
}

func TestParseCSVHeaderOnly(t *testing.T) {
	rows, err := parseCSV([]byte("Date,DeltaE\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("len=%d", len(rows))
	}
}

func TestParseXLSX(t *testing.T) {
	blob := mkXLSX([][]any{
		{"Shade QC export"},
		{"Date", "Roll ID", "Supplier", "DeltaE", "Verdict"},
		{"2026-01-05", "R1", "Arvind Mills", 1.7, ""},
		{},
		{"2026-01-05", "R2", "Arvind Mills", 2.6, "Accepted"},
	})
	rows, err := parseXLSX(blob)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("len=%d", len(rows))
	}
	recs := Normalize(rows)
	if recs[0].Shade != "B" || recs[0].Decision != "ACCEPT" {
		t.Fatalf("rec0=%+v", recs[0])
	}
	if recs[1].RollNo != "R2" || recs[1].Shade != "C" || recs[1].Decision != "ACCEPT" {
		t.Fatalf("rec1=%+v", recs[1])
	}
}

func TestParseXLSXWithoutHeader(t *testing.T) {
	rows, err := parseXLSX(mkXLSX([][]any{{"a", "b"}, {"1", "2"}}))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("len=%d", len(rows))
	}
}

func TestParseHTMLTables(t *testing.T) {
	html := `<html><body>
<table><tr><td>Hello</td></tr><tr><td>team</td></tr></table>
<table>
  <tr><th>Roll No</th><th>Delta E</th><th>Shade</th></tr>
  <tr><td> R-10 </td><td>1.1</td><td></td></tr>
  <tr><td></td><td></td><td></td></tr>
  <tr><td>R-11</td><td>2,4</td><td>c</td></tr>
</table></body></html>`
	rows := parseHTMLTables(html)
	if len(rows) != 2 {
		t.Fatalf("len=%d", len(rows))
	}
	if rows[0]["Roll ID"] != "R-10" || rows[0]["DeltaE"] != "1.1" {
		t.Fatalf("row0=%v", rows[0])
	}
	recs := Normalize(rows)
	if recs[1].DeltaE != 2.4 || recs[1].Shade != "C" || recs[1].Decision != "HOLD" {
		t.Fatalf("rec1=%+v", recs[1])
	}
}

func TestRowsFromTextLines(t *testing.T) {
	lines := []string{
		"Daily shade report",
		"Roll ID, DeltaE, Supplier",
		"R1, 0.4, Arvind Mills",
		"R2, 3.2, Welspun",
	}
	rows, err := rowsFromTextLines(lines)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1]["Supplier"] != "Welspun" {
		t.Fatalf("rows=%v", rows)
	}

	rows, err = rowsFromTextLines([]string{"nothing tabular here"})
	if err != nil || len(rows) != 0 {
		t.Fatalf("rows=%v err=%v", rows, err)
	}
}

func TestDetectInputType(t *testing.T) {
	cases := map[string]string{
		"data.csv":                       InputCSV,
		"Report.XLSX":                    InputXLSX,
		"https://x.test/r.htm?sheet=1":   InputHTML,
		"scan.pdf":                       InputPDF,
		"mail.eml":                       InputEML,
		"https://x.test/export#download": InputCSV,
		"noext":                          InputCSV,
	}
	for name, want := range cases {
		if got := DetectInputType(name); got != want {
			t.Fatalf("DetectInputType(%q)=%s want %s", name, got, want)
		}
	}
}

func compressed(t *testing.T, ext string, plain []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	switch ext {
	case ".gz":
		w := gzip.NewWriter(&buf)
		_, _ = w.Write(plain)
		_ = w.Close()
	case ".zst":
		w, err := zstd.NewWriter(&buf)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write(plain)
		_ = w.Close()
	case ".xz":
		w, err := xz.NewWriter(&buf)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write(plain)
		_ = w.Close()
	}
	return buf.Bytes()
}

func TestParseFileCompressed(t *testing.T) {
	for _, ext := range []string{".gz", ".zst", ".xz"} {
		rows, err := ParseFile("inspection_data.csv"+ext, compressed(t, ext, []byte(sampleCSV)))
		if err != nil {
			t.Fatalf("%s: %v", ext, err)
		}
		if len(rows) != 3 {
			t.Fatalf("%s: len=%d", ext, len(rows))
		}
	}

	xlsx := mkXLSX([][]any{{"Roll ID", "DeltaE"}, {"R1", 0.5}})
	rows, err := ParseFile("report.xlsx.gz", compressed(t, ".gz", xlsx))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["Roll ID"] != "R1" {
		t.Fatalf("rows=%v", rows)
	}

	if _, err := ParseFile("broken.csv.gz", []byte("not gzip")); err == nil {
		t.Fatal("expected gzip error")
	}
}

func TestParseRowsUnsupported(t *testing.T) {
	_, err := ParseRows("docx", nil)
	if !errors.Is(err, ErrUnsupportedInput) {
		t.Fatalf("err=%v", err)
	}
}

func TestLoadRecordsFromInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inspection_data.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	recs, err := LoadRecordsFromInput("auto", path, Normalizer{Today: fixedToday})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 || recs[0].ID != "csv-0" {
		t.Fatalf("recs=%+v", recs)
	}

	// an explicit type overrides the name
	txt := filepath.Join(dir, "export.txt")
	if err := os.WriteFile(txt, []byte("<table><tr><th>Roll</th><th>DeltaE</th></tr><tr><td>R9</td><td>1</td></tr></table>"), 0o644); err != nil {
		t.Fatal(err)
	}
	recs, err = LoadRecordsFromInput(InputHTML, txt, Normalizer{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].RollNo != "R9" {
		t.Fatalf("recs=%+v", recs)
	}
}

func mimeMessage(subject, textBody string, attachName string, attachment []byte) []byte {
	var b strings.Builder
	b.WriteString("From: qc@mill.example\r\n")
	b.WriteString("To: buyer@example.com\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Message-ID: <m1@mill.example>\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	if attachName == "" {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(textBody + "\r\n")
		return []byte(b.String())
	}
	b.WriteString("Content-Type: multipart/mixed; boundary=BOUNDARY\r\n\r\n")
	b.WriteString("--BOUNDARY\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(textBody + "\r\n")
	b.WriteString("--BOUNDARY\r\n")
	b.WriteString("Content-Type: application/octet-stream\r\n")
	b.WriteString("Content-Disposition: attachment; filename=\"" + attachName + "\"\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
	b.WriteString(base64.StdEncoding.EncodeToString(attachment) + "\r\n")
	b.WriteString("--BOUNDARY--\r\n")
	return []byte(b.String())
}

func TestExtractRowsFromEmailRaw(t *testing.T) {
	raw := mimeMessage("Shade inspection 05 Jan", "Please find the QC sheet attached.", "inspection.csv", []byte(sampleCSV))
	ext, err := ExtractRowsFromEmailRaw(raw)
	if err != nil {
		t.Fatal(err)
	}
	if ext.Subject != "Shade inspection 05 Jan" {
		t.Fatalf("subject=%q", ext.Subject)
	}
	if len(ext.AttachmentNames) != 1 || ext.AttachmentNames[0] != "inspection.csv" {
		t.Fatalf("attachments=%v", ext.AttachmentNames)
	}
	if len(ext.Rows) != 3 {
		t.Fatalf("rows=%d", len(ext.Rows))
	}

	plain := mimeMessage("QC", "Roll ID,DeltaE\nR1,1.9\n", "", nil)
	ext, err = ExtractRowsFromEmailRaw(plain)
	if err != nil {
		t.Fatal(err)
	}
	if len(ext.Rows) != 1 || ext.Rows[0]["DeltaE"] != "1.9" {
		t.Fatalf("text rows=%v", ext.Rows)
	}
}
