package internal

// RawRow is one tabular row keyed by column label. Labels may carry any
// casing or surrounding whitespace.
type RawRow map[string]string

type Shade string

const (
	ShadeA      Shade = "A"
	ShadeB      Shade = "B"
	ShadeC      Shade = "C"
	ShadeD      Shade = "D"
	ShadeE      Shade = "E"
	ShadeReject Shade = "REJECT"
	ShadeNone   Shade = "-"
)

type Decision string

const (
	DecisionAccept Decision = "ACCEPT"
	DecisionHold   Decision = "HOLD"
	DecisionReject Decision = "REJECT"
)

// NotEntered is stored for a missing buyer or supplier.
const NotEntered = "Not Entered"

type InspectionRecord struct {
	ID       string   `json:"id" yaml:"id"`
	Date     string   `json:"date" yaml:"date"`
	RollNo   string   `json:"rollNo" yaml:"rollNo"`
	Buyer    string   `json:"buyer" yaml:"buyer"`
	Supplier string   `json:"supplier" yaml:"supplier"`
	Quantity float64  `json:"quantity" yaml:"quantity"`
	DeltaE   float64  `json:"deltaE" yaml:"deltaE"`
	Shade    Shade    `json:"shade" yaml:"shade"`
	Decision Decision `json:"decision" yaml:"decision"`
	Image    *string  `json:"image" yaml:"image"`
}

type RecordOrigin string

const (
	OriginCapture RecordOrigin = "capture"
	OriginSource  RecordOrigin = "source"
	OriginImport  RecordOrigin = "import"
)

type BatchRow struct {
	ID        int                `json:"id"`
	TraceID   string             `json:"traceId"`
	Source    string             `json:"source"`
	Kind      string             `json:"kind"`
	Timings   map[string]float64 `json:"timings"`
	Counts    map[string]int     `json:"counts"`
	CreatedAt string             `json:"createdAt"`
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
