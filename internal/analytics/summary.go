// Package analytics computes the dashboard aggregates. Every function
// recomputes from the record list it is given and keeps input order where
// order is not otherwise defined.
package analytics

import (
	"fmt"
	"strings"

	"shadeqc/internal"
)

type Summary struct {
	Total      int     `json:"total" yaml:"total"`
	Accepted   int     `json:"accepted" yaml:"accepted"`
	Hold       int     `json:"hold" yaml:"hold"`
	Rejected   int     `json:"rejected" yaml:"rejected"`
	MeanDeltaE float64 `json:"meanDeltaE" yaml:"meanDeltaE"`
	AvgDeltaE  string  `json:"avgDeltaE" yaml:"avgDeltaE"`
}

type ShadeCount struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

type ShadeBreakdown struct {
	A      int `json:"A" yaml:"A"`
	B      int `json:"B" yaml:"B"`
	C      int `json:"C" yaml:"C"`
	D      int `json:"D" yaml:"D"`
	Reject int `json:"REJECT" yaml:"REJECT"`
}

type SupplierStats struct {
	Name           string         `json:"name" yaml:"name"`
	Total          int            `json:"total" yaml:"total"`
	Accepted       int            `json:"accepted" yaml:"accepted"`
	Hold           int            `json:"hold" yaml:"hold"`
	Rejected       int            `json:"rejected" yaml:"rejected"`
	AvgDeltaE      string         `json:"avgDeltaE" yaml:"avgDeltaE"`
	AcceptanceRate string         `json:"acceptanceRate" yaml:"acceptanceRate"`
	Shades         ShadeBreakdown `json:"shades" yaml:"shades"`
}

type TrendPoint struct {
	Idx    int            `json:"idx" yaml:"idx"`
	DeltaE float64        `json:"deltaE" yaml:"deltaE"`
	Shade  internal.Shade `json:"shade" yaml:"shade"`
}

type Overview struct {
	Available    bool            `json:"available" yaml:"available"`
	Summary      Summary         `json:"summary" yaml:"summary"`
	Distribution []ShadeCount    `json:"distribution" yaml:"distribution"`
	Suppliers    []SupplierStats `json:"suppliers" yaml:"suppliers"`
	Trend        []TrendPoint    `json:"trend" yaml:"trend"`
}

var distributionBuckets = []internal.Shade{
	internal.ShadeA, internal.ShadeB, internal.ShadeC, internal.ShadeD, internal.ShadeE, internal.ShadeReject,
}

func BuildOverview(records []internal.InspectionRecord, available bool) Overview {
	return Overview{
		Available:    available,
		Summary:      Summarize(records),
		Distribution: Distribution(records),
		Suppliers:    SupplierRollup(records),
		Trend:        Trend(records),
	}
}

func Summarize(records []internal.InspectionRecord) Summary {
	s := Summary{Total: len(records)}
	sum := 0.0
	for _, r := range records {
		switch r.Decision {
		case internal.DecisionAccept:
			s.Accepted++
		case internal.DecisionHold:
			s.Hold++
		case internal.DecisionReject:
			s.Rejected++
		}
		sum += r.DeltaE
	}
	if s.Total > 0 {
		s.MeanDeltaE = sum / float64(s.Total)
	}
	s.AvgDeltaE = formatMean(sum, s.Total)
	return s
}

// Distribution counts shades into the fixed A..E, REJECT buckets. A blank or
// unrecognised shade counts as REJECT.
func Distribution(records []internal.InspectionRecord) []ShadeCount {
	counts := map[internal.Shade]int{}
	for _, r := range records {
		counts[bucketFor(r.Shade, distributionBuckets)]++
	}
	out := make([]ShadeCount, 0, len(distributionBuckets))
	for _, b := range distributionBuckets {
		out = append(out, ShadeCount{Name: string(b), Count: counts[b]})
	}
	return out
}

type supplierAcc struct {
	stats SupplierStats
	sum   float64
}

// SupplierRollup returns one row per supplier in first-seen order.
func SupplierRollup(records []internal.InspectionRecord) []SupplierStats {
	order := []string{}
	acc := map[string]*supplierAcc{}
	for _, r := range records {
		name := r.Supplier
		if strings.TrimSpace(name) == "" {
			name = internal.NotEntered
		}
		a, ok := acc[name]
		if !ok {
			a = &supplierAcc{stats: SupplierStats{Name: name}}
			acc[name] = a
			order = append(order, name)
		}

		a.stats.Total++
		a.sum += r.DeltaE
		switch r.Decision {
		case internal.DecisionAccept:
			a.stats.Accepted++
		case internal.DecisionHold:
			a.stats.Hold++
		case internal.DecisionReject:
			a.stats.Rejected++
		}

		switch r.Shade {
		case internal.ShadeA:
			a.stats.Shades.A++
		case internal.ShadeB:
			a.stats.Shades.B++
		case internal.ShadeC:
			a.stats.Shades.C++
		case internal.ShadeD:
			a.stats.Shades.D++
		default:
			a.stats.Shades.Reject++
		}
	}

	out := make([]SupplierStats, 0, len(order))
	for _, name := range order {
		a := acc[name]
		a.stats.AvgDeltaE = formatMean(a.sum, a.stats.Total)
		a.stats.AcceptanceRate = formatRate(a.stats.Accepted, a.stats.Total)
		out = append(out, a.stats)
	}
	return out
}

// Trend lists deltaE oldest first. Records are held newest first, so this is
// the reversed list numbered from 1.
func Trend(records []internal.InspectionRecord) []TrendPoint {
	out := make([]TrendPoint, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, TrendPoint{Idx: len(out) + 1, DeltaE: records[i].DeltaE, Shade: records[i].Shade})
	}
	return out
}

func bucketFor(shade internal.Shade, buckets []internal.Shade) internal.Shade {
	for _, b := range buckets {
		if shade == b {
			return b
		}
	}
	return internal.ShadeReject
}

func formatMean(sum float64, n int) string {
	if n == 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", sum/float64(n))
}

func formatRate(part, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(part)/float64(total)*100)
}
