package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadeqc/internal"
)

func strp(v string) *string { return &v }

func mk(id, date, supplier string, shade internal.Shade, decision internal.Decision, de float64) internal.InspectionRecord {
	return internal.InspectionRecord{
		ID: id, Date: date, RollNo: "R-" + id, Buyer: "Zara", Supplier: supplier,
		DeltaE: de, Shade: shade, Decision: decision,
	}
}

func TestSupplierRollupAcceptanceRate(t *testing.T) {
	recs := []internal.InspectionRecord{
		mk("1", "2026-01-01", "Arvind Mills", internal.ShadeA, internal.DecisionAccept, 0.5),
		mk("2", "2026-01-01", "Arvind Mills", internal.ShadeB, internal.DecisionAccept, 1.5),
		mk("3", "2026-01-02", "Arvind Mills", internal.ShadeC, internal.DecisionHold, 2.5),
	}
	rows := SupplierRollup(recs)
	require.Len(t, rows, 1)
	assert.Equal(t, "Arvind Mills", rows[0].Name)
	assert.Equal(t, 3, rows[0].Total)
	assert.Equal(t, "66.7%", rows[0].AcceptanceRate)
	assert.Equal(t, "1.50", rows[0].AvgDeltaE)
	assert.Equal(t, ShadeBreakdown{A: 1, B: 1, C: 1}, rows[0].Shades)
}

func TestSupplierRollupOrderAndBlank(t *testing.T) {
	recs := []internal.InspectionRecord{
		mk("1", "d", "Beta", "E", internal.DecisionHold, 1),
		mk("2", "d", " ", internal.ShadeD, internal.DecisionReject, 4),
		mk("3", "d", "Alpha", internal.ShadeA, internal.DecisionAccept, 1),
		mk("4", "d", "Beta", internal.ShadeA, internal.DecisionAccept, 1),
	}
	rows := SupplierRollup(recs)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Beta", internal.NotEntered, "Alpha"}, []string{rows[0].Name, rows[1].Name, rows[2].Name})
	assert.Equal(t, 1, rows[0].Shades.Reject, "E has no supplier column and folds into REJECT")
	assert.Equal(t, "50.0%", rows[0].AcceptanceRate)
	assert.Equal(t, "0.0%", rows[1].AcceptanceRate)
}

func TestSummarizeAndDistribution(t *testing.T) {
	empty := Summarize(nil)
	assert.Equal(t, "0.00", empty.AvgDeltaE)
	assert.Equal(t, 0, empty.Total)

	recs := []internal.InspectionRecord{
		mk("1", "d", "s", internal.ShadeA, internal.DecisionAccept, 1),
		mk("2", "d", "s", internal.ShadeE, internal.DecisionHold, 2),
		mk("3", "d", "s", internal.ShadeNone, internal.DecisionReject, 4),
		mk("4", "d", "s", "", internal.DecisionReject, 4),
		mk("5", "d", "s", "Z", internal.DecisionHold, 0),
	}
	s := Summarize(recs)
	assert.Equal(t, Summary{Total: 5, Accepted: 1, Hold: 2, Rejected: 2, MeanDeltaE: 2.2, AvgDeltaE: "2.20"}, s)

	dist := Distribution(recs)
	assert.Equal(t, []ShadeCount{
		{Name: "A", Count: 1}, {Name: "B"}, {Name: "C"}, {Name: "D"}, {Name: "E", Count: 1}, {Name: "REJECT", Count: 3},
	}, dist)
}

func TestTrendIsOldestFirst(t *testing.T) {
	recs := []internal.InspectionRecord{
		mk("new", "d", "s", internal.ShadeC, internal.DecisionHold, 2.5),
		mk("old", "d", "s", internal.ShadeA, internal.DecisionAccept, 0.3),
	}
	trend := Trend(recs)
	assert.Equal(t, []TrendPoint{{Idx: 1, DeltaE: 0.3, Shade: internal.ShadeA}, {Idx: 2, DeltaE: 2.5, Shade: internal.ShadeC}}, trend)
	assert.Empty(t, Trend(nil))
}

func TestLogViewGroupsAndFilters(t *testing.T) {
	a := mk("1", "2026-01-01", "Arvind Mills", internal.ShadeA, internal.DecisionAccept, 1)
	a.Image = strp("http://img/1.jpg")
	b := mk("2", "2026-01-03", "Welspun", internal.ShadeD, internal.DecisionReject, 4)
	b.Image = strp("http://img/2.jpg")
	c := mk("3", "someday", "Arvind Mills", internal.ShadeB, internal.DecisionAccept, 2)
	d := mk("4", "2026-01-01", "Arvind Mills", internal.ShadeC, internal.DecisionHold, 2.4)
	d.Buyer = "H&M"
	recs := []internal.InspectionRecord{a, b, c, d}

	groups := LogView(recs, Filter{})
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"2026-01-03", "2026-01-01", "someday"}, []string{groups[0].Date, groups[1].Date, groups[2].Date})

	jan1 := groups[1]
	assert.Equal(t, GroupStats{Total: 2, Accept: 1, Hold: 1, AvgDeltaE: "1.70"}, jan1.Stats)
	assert.Equal(t, []string{"1", "4"}, []string{jan1.Records[0].ID, jan1.Records[1].ID})
	require.Len(t, jan1.Galleries, 4)
	assert.Equal(t, internal.ShadeA, jan1.Galleries[0].Shade)
	assert.Len(t, jan1.Galleries[0].Images, 1)
	assert.Empty(t, jan1.Galleries[2].Images, "shade C record has no image")

	groups = LogView(recs, Filter{Search: "h&m"})
	require.Len(t, groups, 1)
	assert.Equal(t, "4", groups[0].Records[0].ID)

	groups = LogView(recs, Filter{Search: "r-2"})
	require.Len(t, groups, 1)
	assert.Equal(t, "2", groups[0].Records[0].ID)

	groups = LogView(recs, Filter{Supplier: "arvind", Date: "2026-01-01"})
	require.Len(t, groups, 1)
	assert.Equal(t, 2, groups[0].Stats.Total)

	assert.Empty(t, LogView(recs, Filter{Date: "2026-1-1"}))
}

func TestGalleryBlankShadeCountsAsD(t *testing.T) {
	r := mk("1", "2026-01-01", "s", "", internal.DecisionHold, 0)
	r.Image = strp("x.jpg")
	g := galleries([]internal.InspectionRecord{r})
	assert.Len(t, g[3].Images, 1)
}

func TestRecentByShade(t *testing.T) {
	var recs []internal.InspectionRecord
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		r := mk(id, "d", "s", internal.ShadeB, internal.DecisionAccept, 1.5)
		if i != 1 {
			r.Image = strp(id + ".jpg")
		}
		recs = append(recs, r)
	}
	got := RecentByShade(recs, "b", 0)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "c", "d"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Empty(t, RecentByShade(recs, "A", 3))
}

func TestSuggestSuppliers(t *testing.T) {
	recs := []internal.InspectionRecord{
		mk("1", "d", "Arvind Mills", internal.ShadeA, internal.DecisionAccept, 1),
		mk("2", "d", "Arvind Mills", internal.ShadeA, internal.DecisionAccept, 1),
		mk("3", "d", "Welspun India", internal.ShadeA, internal.DecisionAccept, 1),
		mk("4", "d", internal.NotEntered, internal.ShadeA, internal.DecisionAccept, 1),
		mk("5", "d", "Vardhman Textiles", internal.ShadeA, internal.DecisionAccept, 1),
	}

	got := SuggestSuppliers(recs, "arv", 5)
	require.NotEmpty(t, got)
	assert.Equal(t, "Arvind Mills", got[0].Name)
	assert.Equal(t, 2, got[0].Count)

	got = SuggestSuppliers(recs, "india welspun", 5)
	require.NotEmpty(t, got)
	assert.Equal(t, "Welspun India", got[0].Name)

	all := SuggestSuppliers(recs, "", 2)
	require.Len(t, all, 2)
	assert.Equal(t, "Arvind Mills", all[0].Name)

	assert.Empty(t, SuggestSuppliers(recs, "zzzz", 5))
}
