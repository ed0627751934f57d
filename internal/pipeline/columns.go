package pipeline

import (
	"sort"
	"strings"

	"shadeqc/internal"
	"shadeqc/internal/util"
)

type Field int

const (
	FieldDate Field = iota
	FieldRollNo
	FieldBuyer
	FieldSupplier
	FieldQuantity
	FieldDeltaE
	FieldShade
	FieldDecision
	FieldImage
	fieldCount
)

var fieldLabels = [fieldCount]string{
	"Date", "Roll ID", "Buyer", "Supplier", "Quantity (m)", "DeltaE", "Shade Group", "Verdict", "Image",
}

var fieldNames = [fieldCount]string{
	"date", "rollNo", "buyer", "supplier", "quantity", "deltaE", "shade", "decision", "image",
}

var fieldAliases = [fieldCount][]string{
	{"date"},
	{"roll", "id"},
	{"buyer"},
	{"supplier"},
	{"quantity", "qty", "meter"},
	{"delta", "de"},
	{"shade", "group"},
	{"verdict", "status", "decision"},
	{"image", "path", "file"},
}

// Label is the canonical column header.
func (f Field) Label() string { return fieldLabels[f] }

// Name is the record field name as it appears in JSON.
func (f Field) Name() string { return fieldNames[f] }

func Fields() []Field {
	out := make([]Field, 0, fieldCount)
	for f := Field(0); f < fieldCount; f++ {
		out = append(out, f)
	}
	return out
}

type aliasProbe struct {
	field Field
	alias string
}

var aliasProbes = func() []aliasProbe {
	out := []aliasProbe{}
	for _, f := range Fields() {
		for _, a := range fieldAliases[f] {
			out = append(out, aliasProbe{field: f, alias: a})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].alias) > len(out[j].alias)
	})
	return out
}()

// ColumnIndex maps the columns of one header row to record fields.
type ColumnIndex struct {
	headers []string
	columns [fieldCount]int
}

// BuildColumnIndex resolves headers in three passes: exact canonical label,
// trimmed case-insensitive label, then alias substring. Each header is
// claimed by at most one field and longer aliases are tried first.
func BuildColumnIndex(headers []string) ColumnIndex {
	idx := ColumnIndex{headers: make([]string, len(headers))}
	for i, h := range headers {
		idx.headers[i] = strings.TrimPrefix(h, "\uFEFF")
	}
	for f := range idx.columns {
		idx.columns[f] = -1
	}
	claimed := make([]bool, len(headers))
	claim := func(f Field, match func(h string) bool) {
		if idx.columns[f] >= 0 {
			return
		}
		for i, h := range idx.headers {
			if claimed[i] || !match(h) {
				continue
			}
			idx.columns[f] = i
			claimed[i] = true
			return
		}
	}

	for _, f := range Fields() {
		label := f.Label()
		claim(f, func(h string) bool { return h == label })
	}
	for _, f := range Fields() {
		label := f.Label()
		claim(f, func(h string) bool { return strings.EqualFold(strings.TrimSpace(h), label) })
	}
	for _, p := range aliasProbes {
		alias := p.alias
		claim(p.field, func(h string) bool { return strings.Contains(util.NormalizeLabel(h), alias) })
	}
	return idx
}

// Column returns the header position for f, or -1.
func (c ColumnIndex) Column(f Field) int { return c.columns[f] }

// Recognized counts the fields that found a column.
func (c ColumnIndex) Recognized() int {
	n := 0
	for _, col := range c.columns {
		if col >= 0 {
			n++
		}
	}
	return n
}

// Row turns one data row into a RawRow keyed by canonical labels. Columns
// that map to no field are kept under their own trimmed header.
func (c ColumnIndex) Row(cells []string) internal.RawRow {
	row := internal.RawRow{}
	mapped := make([]bool, len(c.headers))
	for _, f := range Fields() {
		col := c.columns[f]
		if col < 0 {
			continue
		}
		mapped[col] = true
		if col < len(cells) {
			row[f.Label()] = cells[col]
		}
	}
	for i, h := range c.headers {
		key := strings.TrimSpace(h)
		if mapped[i] || key == "" || i >= len(cells) {
			continue
		}
		if _, exists := row[key]; exists || isFieldLabel(key) {
			continue
		}
		row[key] = cells[i]
	}
	return row
}

func isFieldLabel(key string) bool {
	for _, label := range fieldLabels {
		if strings.EqualFold(key, label) {
			return true
		}
	}
	return false
}

// lookup resolves a field from an arbitrary RawRow: exact canonical key
// first, then a trimmed case-insensitive key. When several keys fold to the
// label the smallest one wins so the result does not depend on map order.
func lookup(row internal.RawRow, f Field) string {
	label := f.Label()
	if v, ok := row[label]; ok {
		return v
	}
	best, found := "", false
	for k := range row {
		if !strings.EqualFold(strings.TrimSpace(k), label) {
			continue
		}
		if !found || k < best {
			best, found = k, true
		}
	}
	if !found {
		return ""
	}
	return row[best]
}
