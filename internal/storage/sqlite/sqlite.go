// Package sqlite records analysis runs: what was queried, how tickets moved
// through the pipeline, and where the report landed.
package sqlite

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"insightbot/internal/domain"
)

type RunRecord struct {
	ID              int64
	GameName        string
	Platform        string
	StartDate       time.Time
	EndDate         time.Time
	Fingerprint     string
	CacheHit        bool
	TicketsFetched  int
	TicketsAccepted int
	TicketsCleaned  int
	Classified      int
	Skipped         int
	AvgConfidence   float64
	TokensUsed      int64
	ReportPath      string
	RanAt           time.Time
}

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS analysis_runs (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		game_name        TEXT NOT NULL,
		platform         TEXT NOT NULL,
		start_date       DATETIME NOT NULL,
		end_date         DATETIME NOT NULL,
		fingerprint      TEXT NOT NULL,
		cache_hit        INTEGER NOT NULL DEFAULT 0,
		tickets_fetched  INTEGER NOT NULL DEFAULT 0,
		tickets_accepted INTEGER NOT NULL DEFAULT 0,
		tickets_cleaned  INTEGER NOT NULL DEFAULT 0,
		classified       INTEGER NOT NULL DEFAULT 0,
		skipped          INTEGER NOT NULL DEFAULT 0,
		avg_confidence   REAL NOT NULL DEFAULT 0,
		tokens_used      INTEGER NOT NULL DEFAULT 0,
		report_path      TEXT DEFAULT '',
		ran_at           DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON analysis_runs(fingerprint);
	CREATE INDEX IF NOT EXISTS idx_runs_ran_at ON analysis_runs(ran_at);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}
	return db, nil
}

func InsertRun(db *sql.DB, run RunRecord) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO analysis_runs (game_name, platform, start_date, end_date, fingerprint, cache_hit,
		 tickets_fetched, tickets_accepted, tickets_cleaned, classified, skipped, avg_confidence, tokens_used, report_path, ran_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.GameName, run.Platform, run.StartDate, run.EndDate, run.Fingerprint, run.CacheHit,
		run.TicketsFetched, run.TicketsAccepted, run.TicketsCleaned, run.Classified, run.Skipped,
		run.AvgConfidence, run.TokensUsed, run.ReportPath, run.RanAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func GetRunsByFingerprint(db *sql.DB, fingerprint string) ([]RunRecord, error) {
	rows, err := db.Query(
		`SELECT id, game_name, platform, start_date, end_date, fingerprint, cache_hit,
		 tickets_fetched, tickets_accepted, tickets_cleaned, classified, skipped, avg_confidence, tokens_used, report_path, ran_at
		 FROM analysis_runs WHERE fingerprint = ? ORDER BY ran_at DESC`,
		fingerprint,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

func GetRecentRuns(db *sql.DB, limit int) ([]RunRecord, error) {
	rows, err := db.Query(
		`SELECT id, game_name, platform, start_date, end_date, fingerprint, cache_hit,
		 tickets_fetched, tickets_accepted, tickets_cleaned, classified, skipped, avg_confidence, tokens_used, report_path, ran_at
		 FROM analysis_runs ORDER BY ran_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]RunRecord, error) {
	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.GameName, &r.Platform, &r.StartDate, &r.EndDate, &r.Fingerprint,
			&r.CacheHit, &r.TicketsFetched, &r.TicketsAccepted, &r.TicketsCleaned, &r.Classified,
			&r.Skipped, &r.AvgConfidence, &r.TokensUsed, &r.ReportPath, &r.RanAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// NewRunRecord seeds a record from the query being analyzed.
func NewRunRecord(q domain.Query) RunRecord {
	return RunRecord{
		GameName:    q.ProductName,
		Platform:    string(q.Platform),
		StartDate:   q.StartDate,
		EndDate:     q.EndDate,
		Fingerprint: q.Fingerprint(),
		RanAt:       time.Now().UTC(),
	}
}
