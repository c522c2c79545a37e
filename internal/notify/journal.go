package notify

import (
	"database/sql"
	"encoding/json"

	_ "github.com/glebarez/go-sqlite"
)

// Journal is a durable, append-only record of every narration this
// process emitted, so a restart does not lose the story of a run.
type Journal struct {
	DB *sql.DB
}

func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS narration (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT,
			kind TEXT,
			message TEXT,
			metadata TEXT,
			artifacts TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	for _, q := range queries {
		_, err = db.Exec(q)
		if err != nil {
			return nil, err
		}
	}

	return &Journal{DB: db}, nil
}

func (j *Journal) Append(rec Record) error {
	metadata, _ := json.Marshal(rec.Metadata)
	artifacts, _ := json.Marshal(rec.Artifacts)
	query := `INSERT INTO narration (task_id, kind, message, metadata, artifacts) VALUES (?, ?, ?, ?, ?)`
	_, err := j.DB.Exec(query, rec.TaskID, string(rec.Kind), rec.Message, string(metadata), string(artifacts))
	return err
}

// Recent returns the last limit records for a task in chronological
// order.
func (j *Journal) Recent(taskID string, limit int) ([]Record, error) {
	query := `SELECT task_id, kind, message, metadata, artifacts FROM narration WHERE task_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := j.DB.Query(query, taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var kind, metadata, artifacts string
		if err := rows.Scan(&rec.TaskID, &kind, &rec.Message, &metadata, &artifacts); err != nil {
			return nil, err
		}
		rec.Kind = Kind(kind)
		if metadata != "" && metadata != "null" {
			_ = json.Unmarshal([]byte(metadata), &rec.Metadata)
		}
		if artifacts != "" && artifacts != "null" {
			_ = json.Unmarshal([]byte(artifacts), &rec.Artifacts)
		}
		records = append(records, rec)
	}

	// Reverse to get chronological order
	for i, k := 0, len(records)-1; i < k; i, k = i+1, k-1 {
		records[i], records[k] = records[k], records[i]
	}

	return records, nil
}

func (j *Journal) Close() error {
	return j.DB.Close()
}
