package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"shadeqc/internal"
)

// DB is the session store. It lives in memory only; closing it discards
// everything.
type DB struct {
	conn *sql.DB
}

// Records are ordered by band then position. Captures sit in front of the
// loaded source and mail imports follow it.
var originBand = map[internal.RecordOrigin]int{
	internal.OriginCapture: 0,
	internal.OriginSource:  1,
	internal.OriginImport:  2,
}

func Open() (*DB, error) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// Every new connection to :memory: is a fresh empty database.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	conn.SetConnMaxIdleTime(0)

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS records (
  id TEXT PRIMARY KEY,
  band INTEGER NOT NULL,
  pos INTEGER NOT NULL,
  origin TEXT NOT NULL,
  batchKey TEXT NOT NULL,
  date TEXT NOT NULL,
  rollNo TEXT NOT NULL,
  buyer TEXT NOT NULL,
  supplier TEXT NOT NULL,
  quantity REAL NOT NULL,
  deltaE REAL NOT NULL,
  shade TEXT NOT NULL,
  decision TEXT NOT NULL,
  image TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_records_order ON records(band, pos);
CREATE INDEX IF NOT EXISTS idx_records_batch ON records(batchKey);

CREATE TABLE IF NOT EXISTS batches (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  source TEXT NOT NULL,
  kind TEXT NOT NULL,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  raw BLOB NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// ReplaceBatch swaps every record of batchKey for recs, placed at the end of
// the origin's band in slice order. For the source band use ReplaceOrigin.
func (d *DB) ReplaceBatch(origin internal.RecordOrigin, batchKey string, recs []internal.InspectionRecord) error {
	band, ok := originBand[origin]
	if !ok {
		return fmt.Errorf("unknown record origin %q", origin)
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM records WHERE batchKey = ? AND band = ?`, batchKey, band); err != nil {
		return err
	}
	var next int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(pos) + 1, 0) FROM records WHERE band = ?`, band).Scan(&next); err != nil {
		return err
	}
	if err := insertRecords(tx, origin, band, batchKey, next, recs); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceOrigin empties the origin's band and fills it with recs.
func (d *DB) ReplaceOrigin(origin internal.RecordOrigin, batchKey string, recs []internal.InspectionRecord) error {
	band, ok := originBand[origin]
	if !ok {
		return fmt.Errorf("unknown record origin %q", origin)
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM records WHERE band = ?`, band); err != nil {
		return err
	}
	if err := insertRecords(tx, origin, band, batchKey, 0, recs); err != nil {
		return err
	}
	return tx.Commit()
}

// PrependRecord puts rec in front of every stored record.
func (d *DB) PrependRecord(rec internal.InspectionRecord) error {
	band := originBand[internal.OriginCapture]

	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var pos int
	if err := tx.QueryRow(`SELECT COALESCE(MIN(pos) - 1, 0) FROM records WHERE band = ?`, band).Scan(&pos); err != nil {
		return err
	}
	if err := insertRecords(tx, internal.OriginCapture, band, rec.ID, pos, []internal.InspectionRecord{rec}); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRecords(tx *sql.Tx, origin internal.RecordOrigin, band int, batchKey string, firstPos int, recs []internal.InspectionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`
INSERT INTO records (
  id, band, pos, origin, batchKey,
  date, rollNo, buyer, supplier, quantity, deltaE, shade, decision, image
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range recs {
		if _, err := stmt.Exec(
			r.ID, band, firstPos+i, string(origin), batchKey,
			r.Date, r.RollNo, r.Buyer, r.Supplier, r.Quantity, r.DeltaE, string(r.Shade), string(r.Decision), r.Image,
		); err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}
	return nil
}

func (d *DB) ListRecords() ([]internal.InspectionRecord, error) {
	rows, err := d.conn.Query(`
SELECT id, date, rollNo, buyer, supplier, quantity, deltaE, shade, decision, image
FROM records ORDER BY band ASC, pos ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.InspectionRecord{}
	for rows.Next() {
		var r internal.InspectionRecord
		var shade, decision string
		if err := rows.Scan(
			&r.ID, &r.Date, &r.RollNo, &r.Buyer, &r.Supplier, &r.Quantity, &r.DeltaE, &shade, &decision, &r.Image,
		); err != nil {
			return nil, err
		}
		r.Shade = internal.Shade(shade)
		r.Decision = internal.Decision(decision)
		out = append(out, r)
	}

	return out, rows.Err()
}

func (d *DB) CountRecords(origin internal.RecordOrigin) (int, error) {
	var n int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM records WHERE origin = ?`, string(origin)).Scan(&n)
	return n, err
}

func (d *DB) InsertBatch(traceID, source, kind string, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO batches (traceId, source, kind, timingsJson, countsJson) VALUES (?, ?, ?, ?, ?)`,
		traceID, source, kind, string(timingsJSON), string(countsJSON))
	return err
}

// ListBatches returns the newest batches first.
func (d *DB) ListBatches(limit int) ([]internal.BatchRow, error) {
	rows, err := d.conn.Query(`
SELECT id, traceId, source, kind, timingsJson, countsJson, createdAt
FROM batches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []internal.BatchRow{}
	for rows.Next() {
		var b internal.BatchRow
		var timingsJSON, countsJSON string
		if err := rows.Scan(&b.ID, &b.TraceID, &b.Source, &b.Kind, &timingsJSON, &countsJSON, &b.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(timingsJSON), &b.Timings)
		_ = json.Unmarshal([]byte(countsJSON), &b.Counts)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash string, raw []byte, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, raw)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  raw=excluded.raw,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, raw)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

const emailColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status`

func scanEmail(scan func(dest ...any) error) (internal.EmailRow, error) {
	var row internal.EmailRow
	var subject, sender, receivedAt sql.NullString
	err := scan(&row.ID, &row.Provider, &row.MessageID, &subject, &sender, &receivedAt, &row.Hash, &row.Status)
	row.Subject, row.Sender, row.ReceivedAt = subject.String, sender.String, receivedAt.String
	return row, err
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE provider = ? AND messageId = ?`, provider, messageID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetEmailByID(id int) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE id = ?`, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) EmailRaw(id int) ([]byte, error) {
	var raw []byte
	err := d.conn.QueryRow(`SELECT raw FROM emails WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email not found: id=%d", id)
	}
	return raw, err
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`SELECT `+emailColumns+` FROM emails WHERE status = ? ORDER BY receivedAt ASC, id ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		row, err := scanEmail(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
