package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Run statuses. A run either completes and owns its artifacts, or fails
// and owns nothing.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run represents one pipeline execution in the run registry.
type Run struct {
	ID            string     `json:"id"`
	ReferenceDate time.Time  `json:"reference_date"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Status        string     `json:"status"`
	PanelRows     int        `json:"panel_rows"`
	ChurnRows     int        `json:"churn_rows"`
	ArtifactPath  string     `json:"artifact_path,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// PanelIndexRow is the compact per-panel-row record kept in the results
// store alongside the CSV artifact.
type PanelIndexRow struct {
	AccountID      string
	Month          string
	ChurnFlag      int
	AccountAgeDays int
	CompositeRisk  float64
}

// RunRepository handles run registry persistence
type RunRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sql.DB, log zerolog.Logger) *RunRepository {
	return &RunRepository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

// Create registers a new run in the running state
func (r *RunRepository) Create(run *Run) error {
	_, err := r.db.Exec(
		`INSERT INTO runs (id, reference_date, started_at, status) VALUES (?, ?, ?, ?)`,
		run.ID,
		run.ReferenceDate.Format("2006-01-02"),
		run.StartedAt.UTC().Format(time.RFC3339),
		RunStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Complete marks a run completed and records its outputs. The panel index
// rows and the completion flag commit in one transaction so a crash mid
// persist leaves no partial run.
func (r *RunRepository) Complete(runID string, artifactPath string, rows []PanelIndexRow, churnRows int) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO panel_rows (run_id, account_id, month, churn_flag, account_age_days, composite_risk)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare panel index insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.Exec(runID, row.AccountID, row.Month, row.ChurnFlag, row.AccountAgeDays, row.CompositeRisk); err != nil {
			return fmt.Errorf("failed to insert panel index row %s/%s: %w", row.AccountID, row.Month, err)
		}
	}

	_, err = tx.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, panel_rows = ?, churn_rows = ?, artifact_path = ? WHERE id = ?`,
		RunStatusCompleted,
		time.Now().UTC().Format(time.RFC3339),
		len(rows),
		churnRows,
		artifactPath,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	return tx.Commit()
}

// Fail marks a run failed with a reason
func (r *RunRepository) Fail(runID string, runErr error) error {
	_, err := r.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		RunStatusFailed,
		time.Now().UTC().Format(time.RFC3339),
		runErr.Error(),
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark run failed: %w", err)
	}
	return nil
}

// Get returns a run by ID
func (r *RunRepository) Get(runID string) (*Run, error) {
	row := r.db.QueryRow(
		`SELECT id, reference_date, started_at, completed_at, status, panel_rows, churn_rows, artifact_path, error
		 FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

// Latest returns the most recently started run
func (r *RunRepository) Latest() (*Run, error) {
	row := r.db.QueryRow(
		`SELECT id, reference_date, started_at, completed_at, status, panel_rows, churn_rows, artifact_path, error
		 FROM runs ORDER BY started_at DESC LIMIT 1`,
	)
	return scanRun(row)
}

// SaveQuality persists the quality summary JSON for a run
func (r *RunRepository) SaveQuality(runID string, payload []byte) error {
	_, err := r.db.Exec(
		`INSERT OR REPLACE INTO quality_summaries (run_id, payload, created_at) VALUES (?, ?, ?)`,
		runID,
		string(payload),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save quality summary: %w", err)
	}
	return nil
}

// QualityFor returns the quality summary JSON for a run
func (r *RunRepository) QualityFor(runID string) ([]byte, error) {
	var payload string
	err := r.db.QueryRow(`SELECT payload FROM quality_summaries WHERE run_id = ?`, runID).Scan(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to load quality summary: %w", err)
	}
	return []byte(payload), nil
}

// LatestQuality returns the quality summary JSON of the latest completed run
func (r *RunRepository) LatestQuality() ([]byte, error) {
	var payload string
	err := r.db.QueryRow(
		`SELECT q.payload FROM quality_summaries q
		 JOIN runs r ON r.id = q.run_id
		 WHERE r.status = ?
		 ORDER BY r.started_at DESC LIMIT 1`,
		RunStatusCompleted,
	).Scan(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest quality summary: %w", err)
	}
	return []byte(payload), nil
}

func scanRun(row *sql.Row) (*Run, error) {
	var (
		run          Run
		refDate      string
		startedAt    string
		completedAt  sql.NullString
		panelRows    sql.NullInt64
		churnRows    sql.NullInt64
		artifactPath sql.NullString
		runError     sql.NullString
	)

	err := row.Scan(&run.ID, &refDate, &startedAt, &completedAt, &run.Status, &panelRows, &churnRows, &artifactPath, &runError)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.ReferenceDate, err = time.Parse("2006-01-02", refDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reference date %q: %w", refDate, err)
	}
	run.StartedAt, err = time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at %q: %w", startedAt, err)
	}
	if completedAt.Valid {
		t, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at %q: %w", completedAt.String, err)
		}
		run.CompletedAt = &t
	}
	run.PanelRows = int(panelRows.Int64)
	run.ChurnRows = int(churnRows.Int64)
	run.ArtifactPath = artifactPath.String
	run.Error = runError.String

	return &run, nil
}
