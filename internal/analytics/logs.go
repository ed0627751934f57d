package analytics

import (
	"sort"
	"strings"
	"time"

	"shadeqc/internal"
)

const DefaultRecentLimit = 3

type Filter struct {
	Search   string `json:"search" yaml:"search"`
	Supplier string `json:"supplier" yaml:"supplier"`
	Date     string `json:"date" yaml:"date"`
}

type GroupStats struct {
	Total     int    `json:"total" yaml:"total"`
	Accept    int    `json:"accept" yaml:"accept"`
	Hold      int    `json:"hold" yaml:"hold"`
	Reject    int    `json:"reject" yaml:"reject"`
	AvgDeltaE string `json:"avgDeltaE" yaml:"avgDeltaE"`
}

type GalleryImage struct {
	ID     string `json:"id" yaml:"id"`
	RollNo string `json:"rollNo" yaml:"rollNo"`
	Image  string `json:"image" yaml:"image"`
}

type ShadeGallery struct {
	Shade  internal.Shade `json:"shade" yaml:"shade"`
	Images []GalleryImage `json:"images" yaml:"images"`
}

type LogGroup struct {
	Date      string                      `json:"date" yaml:"date"`
	Records   []internal.InspectionRecord `json:"records" yaml:"records"`
	Stats     GroupStats                  `json:"stats" yaml:"stats"`
	Galleries []ShadeGallery              `json:"galleries" yaml:"galleries"`
}

var galleryShades = []internal.Shade{internal.ShadeA, internal.ShadeB, internal.ShadeC, internal.ShadeD}

var dateLayouts = []string{time.DateOnly, "2006/01/02", "02-01-2006", "01/02/2006", time.RFC3339}

func (f Filter) Match(r internal.InspectionRecord) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(r.Buyer), q) && !strings.Contains(strings.ToLower(r.RollNo), q) {
			return false
		}
	}
	if q := strings.ToLower(strings.TrimSpace(f.Supplier)); q != "" {
		if !strings.Contains(strings.ToLower(r.Supplier), q) {
			return false
		}
	}
	if d := strings.TrimSpace(f.Date); d != "" && r.Date != d {
		return false
	}
	return true
}

// LogView filters records and groups them by date, newest date first. Dates
// that do not parse sort after all others; ties keep first-seen order.
func LogView(records []internal.InspectionRecord, filter Filter) []LogGroup {
	order := []string{}
	groups := map[string]*LogGroup{}
	sums := map[string]float64{}
	for _, r := range records {
		if !filter.Match(r) {
			continue
		}
		g, ok := groups[r.Date]
		if !ok {
			g = &LogGroup{Date: r.Date}
			groups[r.Date] = g
			order = append(order, r.Date)
		}
		g.Records = append(g.Records, r)
		g.Stats.Total++
		sums[r.Date] += r.DeltaE
		switch r.Decision {
		case internal.DecisionAccept:
			g.Stats.Accept++
		case internal.DecisionHold:
			g.Stats.Hold++
		case internal.DecisionReject:
			g.Stats.Reject++
		}
	}

	out := make([]LogGroup, 0, len(order))
	for _, date := range order {
		g := groups[date]
		g.Stats.AvgDeltaE = formatMean(sums[date], g.Stats.Total)
		g.Galleries = galleries(g.Records)
		out = append(out, *g)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, okI := parseDate(out[i].Date)
		tj, okJ := parseDate(out[j].Date)
		switch {
		case okI && okJ:
			return ti.After(tj)
		case okI != okJ:
			return okI
		default:
			return false
		}
	})
	return out
}

// galleries collects imaged records per shade A..D. A record with a blank
// shade is shown under D.
func galleries(records []internal.InspectionRecord) []ShadeGallery {
	out := make([]ShadeGallery, 0, len(galleryShades))
	for _, shade := range galleryShades {
		g := ShadeGallery{Shade: shade, Images: []GalleryImage{}}
		for _, r := range records {
			s := r.Shade
			if strings.TrimSpace(string(s)) == "" {
				s = internal.ShadeD
			}
			if s != shade || r.Image == nil {
				continue
			}
			g.Images = append(g.Images, GalleryImage{ID: r.ID, RollNo: r.RollNo, Image: *r.Image})
		}
		out = append(out, g)
	}
	return out
}

// RecentByShade returns the first n imaged records of a shade, newest first
// given a newest-first list.
func RecentByShade(records []internal.InspectionRecord, shade string, n int) []internal.InspectionRecord {
	if n <= 0 {
		n = DefaultRecentLimit
	}
	want := internal.Shade(strings.ToUpper(strings.TrimSpace(shade)))
	out := []internal.InspectionRecord{}
	for _, r := range records {
		if len(out) >= n {
			break
		}
		if r.Shade == want && r.Image != nil {
			out = append(out, r)
		}
	}
	return out
}

func parseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
