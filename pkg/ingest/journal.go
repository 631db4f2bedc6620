package ingest

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Journal persists submitted workflow run ids and their last observed
// status in a local SQLite database, so status checks and reports can run
// long after the submitting process exited.
type Journal struct {
	db *sql.DB
}

// RunRecord is one journaled workflow run.
type RunRecord struct {
	RunID     string
	GroupName string
	Submitted int64
	Status    string
	StartTime *int64
	EndTime   *int64
}

// OpenJournal opens (or creates) the run journal at path.
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open run journal: %w", err)
	}

	const ddl = `CREATE TABLE IF NOT EXISTS workflow_runs (
		run_id       TEXT PRIMARY KEY,
		group_name   TEXT NOT NULL DEFAULT 'ingestion',
		submitted_at INTEGER NOT NULL,
		status       TEXT NOT NULL DEFAULT 'submitted',
		start_time   INTEGER,
		end_time     INTEGER
	)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create workflow_runs table: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Record inserts a freshly submitted run.
func (j *Journal) Record(runID, group string) error {
	const q = `INSERT OR REPLACE INTO workflow_runs (run_id, group_name, submitted_at, status)
		VALUES (?, ?, ?, 'submitted')`
	if _, err := j.db.Exec(q, runID, group, time.Now().Unix()); err != nil {
		return fmt.Errorf("journal run %s: %w", runID, err)
	}
	return nil
}

// RunIDs returns the journaled run ids for a group, oldest first. An empty
// group selects every run.
func (j *Journal) RunIDs(group string) ([]string, error) {
	q := `SELECT run_id FROM workflow_runs ORDER BY submitted_at`
	args := []any{}
	if group != "" {
		q = `SELECT run_id FROM workflow_runs WHERE group_name = ? ORDER BY submitted_at`
		args = append(args, group)
	}
	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateStatus stores the latest observed workflow state for a run.
func (j *Journal) UpdateStatus(st RunStatus) error {
	const q = `UPDATE workflow_runs SET status = ?, start_time = ?, end_time = ? WHERE run_id = ?`
	var start, end *int64
	if st.StartTimeStamp > 0 {
		start = &st.StartTimeStamp
	}
	if st.EndTimeStamp > 0 {
		end = &st.EndTimeStamp
	}
	if _, err := j.db.Exec(q, st.Status, start, end, st.RunID); err != nil {
		return fmt.Errorf("update run %s: %w", st.RunID, err)
	}
	return nil
}

// Runs returns the full journal rows for a group, oldest first.
func (j *Journal) Runs(group string) ([]RunRecord, error) {
	q := `SELECT run_id, group_name, submitted_at, status, start_time, end_time
		FROM workflow_runs ORDER BY submitted_at`
	args := []any{}
	if group != "" {
		q = `SELECT run_id, group_name, submitted_at, status, start_time, end_time
			FROM workflow_runs WHERE group_name = ? ORDER BY submitted_at`
		args = append(args, group)
	}
	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.GroupName, &r.Submitted, &r.Status, &r.StartTime, &r.EndTime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
