package index

import (
	"database/sql"
	"encoding/json"
	"strings"

	"offliner/internal/download"
	apperr "offliner/internal/errors"
	"offliner/internal/requirements"
)

// downloadColumns is the standard SELECT column list, ordered to match
// scanRecord.
const downloadColumns = `id, content_type, uri, cache_key, stream_keys, custom_metadata,
	state, failure_reason, not_met_requirements, stop_reason,
	start_time_ms, update_time_ms, bytes_downloaded, content_length, filename`

// terminalStates is reused by the stop-reason updates, which only touch
// rows that can still run.
var terminalStates = []download.State{
	download.StateCompleted,
	download.StateFailed,
	download.StateRemoved,
}

// Index stores download records in SQLite. It satisfies the manager's
// record-store contract.
type Index struct {
	db *DB
}

// New creates an Index over an open database.
func New(db *DB) *Index {
	return &Index{db: db}
}

// Record returns the row for id, or nil when absent.
func (x *Index) Record(id string) (*download.Record, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads WHERE id = ?`
	rec, err := scanRecord(x.db.conn.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap("index.Record", err)
	}
	return &rec, nil
}

// Records returns rows whose state matches any of the given states, in
// insertion order. No states means every row.
func (x *Index) Records(states ...download.State) ([]download.Record, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads`
	var args []any
	if len(states) > 0 {
		query += ` WHERE state IN (` + placeholders(len(states)) + `)`
		for _, s := range states {
			args = append(args, int(s))
		}
	}
	query += ` ORDER BY rowid ASC`

	rows, err := x.db.conn.Query(query, args...)
	if err != nil {
		return nil, apperr.Wrap("index.Records", err)
	}
	defer rows.Close()

	var recs []download.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, apperr.Wrap("index.Records", err)
		}
		recs = append(recs, rec)
	}
	return recs, apperr.Wrap("index.Records", rows.Err())
}

// Put inserts or replaces a row.
func (x *Index) Put(rec download.Record) error {
	keys, err := json.Marshal(rec.StreamKeys)
	if err != nil {
		return apperr.Wrap("index.Put", err)
	}

	query := `
		INSERT INTO downloads (
			id, content_type, uri, cache_key, stream_keys, custom_metadata,
			state, failure_reason, not_met_requirements, stop_reason,
			start_time_ms, update_time_ms, bytes_downloaded, content_length, filename
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content_type=excluded.content_type,
			uri=excluded.uri,
			cache_key=excluded.cache_key,
			stream_keys=excluded.stream_keys,
			custom_metadata=excluded.custom_metadata,
			state=excluded.state,
			failure_reason=excluded.failure_reason,
			not_met_requirements=excluded.not_met_requirements,
			stop_reason=excluded.stop_reason,
			start_time_ms=excluded.start_time_ms,
			update_time_ms=excluded.update_time_ms,
			bytes_downloaded=excluded.bytes_downloaded,
			content_length=excluded.content_length,
			filename=excluded.filename
	`

	_, err = x.db.conn.Exec(query,
		rec.ID, rec.Type, rec.URI, rec.CacheKey, string(keys), rec.CustomMetadata,
		int(rec.State), int(rec.FailureReason), uint32(rec.NotMetRequirements), rec.StopReason,
		rec.StartTimeMs, rec.UpdateTimeMs, rec.Counters.BytesDownloaded, rec.Counters.ContentLength,
		rec.Filename,
	)
	return apperr.Wrap("index.Put", err)
}

// Remove deletes a row. Removing an absent id is not an error.
func (x *Index) Remove(id string) error {
	_, err := x.db.conn.Exec("DELETE FROM downloads WHERE id = ?", id)
	return apperr.Wrap("index.Remove", err)
}

// SetStopReason updates the stop reason of every non-terminal row.
func (x *Index) SetStopReason(reason int) error {
	query := `UPDATE downloads SET stop_reason = ? WHERE state NOT IN (` + placeholders(len(terminalStates)) + `)`
	args := []any{reason}
	for _, s := range terminalStates {
		args = append(args, int(s))
	}
	_, err := x.db.conn.Exec(query, args...)
	return apperr.Wrap("index.SetStopReason", err)
}

// SetStopReasonByID updates the stop reason of one non-terminal row.
func (x *Index) SetStopReasonByID(id string, reason int) error {
	query := `UPDATE downloads SET stop_reason = ? WHERE id = ? AND state NOT IN (` + placeholders(len(terminalStates)) + `)`
	args := []any{reason, id}
	for _, s := range terminalStates {
		args = append(args, int(s))
	}
	_, err := x.db.conn.Exec(query, args...)
	return apperr.Wrap("index.SetStopReasonByID", err)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (download.Record, error) {
	var rec download.Record
	var state, failureReason int
	var notMet uint32
	var keys string

	err := row.Scan(
		&rec.ID, &rec.Type, &rec.URI, &rec.CacheKey, &keys, &rec.CustomMetadata,
		&state, &failureReason, &notMet, &rec.StopReason,
		&rec.StartTimeMs, &rec.UpdateTimeMs, &rec.Counters.BytesDownloaded, &rec.Counters.ContentLength,
		&rec.Filename,
	)
	if err != nil {
		return rec, err
	}

	rec.State = download.State(state)
	rec.FailureReason = download.FailureReason(failureReason)
	rec.NotMetRequirements = requirements.Flags(notMet)
	if err := json.Unmarshal([]byte(keys), &rec.StreamKeys); err != nil {
		// Unreadable stream keys degrade to "all streams".
		rec.StreamKeys = nil
	}
	return rec, nil
}
