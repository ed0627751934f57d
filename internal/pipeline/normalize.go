package pipeline

import (
	"fmt"
	"strings"
	"time"

	"shadeqc/internal"
	"shadeqc/internal/util"
)

const DefaultIDPrefix = "csv"

type FillKind string

const (
	// FillDefaulted means the value was absent and a constant or placeholder
	// was stored.
	FillDefaulted FillKind = "defaulted"
	// FillDerived means the value was computed from another field.
	FillDerived FillKind = "derived"
	// FillUnparsed means a value was present but not a usable number.
	FillUnparsed FillKind = "unparsed"
)

type FillEvent struct {
	Index int
	Field Field
	Kind  FillKind
	Raw   string
}

// Normalizer turns raw rows into complete inspection records. The zero value
// is ready to use.
type Normalizer struct {
	Prefix   string
	Today    func() string
	Observer func(FillEvent)
}

// Normalize runs the zero Normalizer over rows.
func Normalize(rows []internal.RawRow) []internal.InspectionRecord {
	return Normalizer{}.Normalize(rows)
}

func (n Normalizer) Normalize(rows []internal.RawRow) []internal.InspectionRecord {
	today := n.today()
	out := make([]internal.InspectionRecord, 0, len(rows))
	for i, row := range rows {
		out = append(out, n.normalizeRow(i, row, today))
	}
	return out
}

// NormalizeRow normalizes a single row as if it sat at index in its batch.
func (n Normalizer) NormalizeRow(index int, row internal.RawRow) internal.InspectionRecord {
	return n.normalizeRow(index, row, n.today())
}

func (n Normalizer) normalizeRow(index int, row internal.RawRow, today string) internal.InspectionRecord {
	var raw [fieldCount]string
	for _, f := range Fields() {
		raw[f] = lookup(row, f)
	}
	emit := func(f Field, kind FillKind) {
		if n.Observer != nil {
			n.Observer(FillEvent{Index: index, Field: f, Kind: kind, Raw: raw[f]})
		}
	}
	text := func(f Field, fallback string) string {
		if util.IsBlank(raw[f]) {
			emit(f, FillDefaulted)
			return fallback
		}
		return raw[f]
	}
	number := func(f Field, parse func(string) (float64, bool)) float64 {
		v, ok := parse(raw[f])
		switch {
		case ok:
			return v
		case util.IsBlank(raw[f]):
			emit(f, FillDefaulted)
		default:
			emit(f, FillUnparsed)
		}
		return 0
	}

	rec := internal.InspectionRecord{}
	rec.Buyer = text(FieldBuyer, internal.NotEntered)
	rec.Supplier = text(FieldSupplier, internal.NotEntered)
	rec.DeltaE = number(FieldDeltaE, util.ParseDecimal)

	shade := strings.ToUpper(strings.TrimSpace(raw[FieldShade]))
	if shade == "" {
		shade = string(ShadeForDeltaE(rec.DeltaE))
		emit(FieldShade, FillDerived)
	}
	rec.Shade = internal.Shade(shade)

	if util.IsBlank(raw[FieldDecision]) {
		rec.Decision = DecisionForShade(shade)
		emit(FieldDecision, FillDerived)
	} else {
		rec.Decision = NormalizeDecision(raw[FieldDecision])
	}

	rec.Date = text(FieldDate, today)
	rec.RollNo = text(FieldRollNo, fmt.Sprintf("UNK-%d", index))
	rec.Quantity = number(FieldQuantity, util.ParseQuantity)
	if !util.IsBlank(raw[FieldImage]) {
		rec.Image = util.StringPtr(raw[FieldImage])
	}
	rec.ID = fmt.Sprintf("%s-%d", n.prefix(), index)
	return rec
}

func (n Normalizer) prefix() string {
	if strings.TrimSpace(n.Prefix) == "" {
		return DefaultIDPrefix
	}
	return n.Prefix
}

func (n Normalizer) today() string {
	if n.Today != nil {
		return n.Today()
	}
	return time.Now().Format(time.DateOnly)
}

// RecordRawRow renders a record back into canonical columns. Normalizing the
// result at the same index and prefix yields the record again.
func RecordRawRow(rec internal.InspectionRecord) internal.RawRow {
	image := ""
	if rec.Image != nil {
		image = *rec.Image
	}
	return internal.RawRow{
		FieldDate.Label():     rec.Date,
		FieldRollNo.Label():   rec.RollNo,
		FieldBuyer.Label():    rec.Buyer,
		FieldSupplier.Label(): rec.Supplier,
		FieldQuantity.Label(): util.FormatNumber(rec.Quantity),
		FieldDeltaE.Label():   util.FormatNumber(rec.DeltaE),
		FieldShade.Label():    string(rec.Shade),
		FieldDecision.Label(): string(rec.Decision),
		FieldImage.Label():    image,
	}
}
