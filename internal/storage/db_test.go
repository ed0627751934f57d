package storage

import (
	"testing"

	"shadeqc/internal"
)

func rec(id string) internal.InspectionRecord {
	return internal.InspectionRecord{
		ID: id, Date: "2026-01-02", RollNo: "R-" + id, Buyer: "B", Supplier: "S",
		Quantity: 10, DeltaE: 1.1, Shade: internal.ShadeA, Decision: internal.DecisionAccept,
	}
}

func ids(t *testing.T, db *DB) []string {
	t.Helper()
	recs, err := db.ListRecords()
	if err != nil {
		t.Fatal(err)
	}
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRecordOrdering(t *testing.T) {
	db, err := Open()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := db.ReplaceOrigin(internal.OriginSource, "data.csv", []internal.InspectionRecord{rec("csv-0"), rec("csv-1")}); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceBatch(internal.OriginImport, "mail:1", []internal.InspectionRecord{rec("mail1-0")}); err != nil {
		t.Fatal(err)
	}
	if err := db.PrependRecord(rec("cap-a")); err != nil {
		t.Fatal(err)
	}
	if err := db.PrependRecord(rec("cap-b")); err != nil {
		t.Fatal(err)
	}

	want := []string{"cap-b", "cap-a", "csv-0", "csv-1", "mail1-0"}
	if got := ids(t, db); !equalIDs(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}

	// reloading the source keeps captures and imports in place
	if err := db.ReplaceOrigin(internal.OriginSource, "data.csv", []internal.InspectionRecord{rec("csv-0")}); err != nil {
		t.Fatal(err)
	}
	want = []string{"cap-b", "cap-a", "csv-0", "mail1-0"}
	if got := ids(t, db); !equalIDs(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}

	// re-importing one mail replaces its rows instead of duplicating them
	if err := db.ReplaceBatch(internal.OriginImport, "mail:1", []internal.InspectionRecord{rec("mail1-0"), rec("mail1-1")}); err != nil {
		t.Fatal(err)
	}
	n, err := db.CountRecords(internal.OriginImport)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("imports=%d", n)
	}
}

func TestRecordFieldsSurvive(t *testing.T) {
	db, err := Open()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	img := "http://img/1.jpg"
	in := rec("csv-0")
	in.Image = &img
	in.Shade = "X"
	in.Quantity = 95.5
	second := rec("csv-1")

	if err := db.ReplaceOrigin(internal.OriginSource, "s", []internal.InspectionRecord{in, second}); err != nil {
		t.Fatal(err)
	}
	got, err := db.ListRecords()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0].Image == nil || *got[0].Image != img {
		t.Fatalf("image lost: %+v", got[0].Image)
	}
	if got[1].Image != nil {
		t.Fatalf("nil image became %q", *got[1].Image)
	}
	if got[0].Shade != "X" || got[0].Quantity != 95.5 || got[0].Decision != internal.DecisionAccept {
		t.Fatalf("record changed: %+v", got[0])
	}
}

func TestEmailsAndMetadata(t *testing.T) {
	db, err := Open()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	email, err := db.UpsertEmail("imap", "<m1@example.com>", "QC", "qc@example.com", "2026-02-08T00:00:00Z", "h1", []byte("raw-1"), "fetched")
	if err != nil {
		t.Fatal(err)
	}
	again, err := db.UpsertEmail("imap", "<m1@example.com>", "QC", "qc@example.com", "2026-02-08T00:00:00Z", "h1", []byte("raw-1"), "fetched")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != email.ID {
		t.Fatalf("duplicate email row: %d vs %d", again.ID, email.ID)
	}

	raw, err := db.EmailRaw(email.ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "raw-1" {
		t.Fatalf("raw=%q", raw)
	}

	pending, err := db.ListEmailsByStatus("fetched", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending=%d", len(pending))
	}
	if err := db.UpdateEmailStatus(email.ID, "processed"); err != nil {
		t.Fatal(err)
	}
	pending, _ = db.ListEmailsByStatus("fetched", 10)
	if len(pending) != 0 {
		t.Fatalf("pending after update=%d", len(pending))
	}

	if v, err := db.GetMetadata("missing"); err != nil || v != nil {
		t.Fatalf("missing metadata: %v %v", v, err)
	}
	if err := db.SetMetadata("source.location", "a.csv"); err != nil {
		t.Fatal(err)
	}
	v, err := db.GetMetadata("source.location")
	if err != nil || v == nil || *v != "a.csv" {
		t.Fatalf("metadata: %v %v", v, err)
	}

	if err := db.InsertBatch("t1", "a.csv", "source", map[string]float64{"totalMs": 3}, map[string]int{"rows": 2}); err != nil {
		t.Fatal(err)
	}
	batches, err := db.ListBatches(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 1 || batches[0].Counts["rows"] != 2 {
		t.Fatalf("batches=%+v", batches)
	}
}
