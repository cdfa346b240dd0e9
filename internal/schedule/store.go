package schedule

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrInvalidCron      = errors.New("invalid cron expression")
)

// Store handles schedule persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new schedule store with SQLite backend
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "schedules.db")
	// Enable WAL mode and busy timeout for better concurrent access
	db, err := sql.Open("sqlite", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		cron_expr TEXT NOT NULL,
		prompt TEXT NOT NULL,
		agent_type TEXT NOT NULL,
		project_dir TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		overlap TEXT NOT NULL DEFAULT 'skip',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_run_at DATETIME,
		next_run_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_schedules_enabled ON schedules(enabled);
	CREATE INDEX IF NOT EXISTS idx_schedules_next_run ON schedules(next_run_at);

	CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		schedule_id TEXT NOT NULL,
		session_id TEXT,
		executed_at DATETIME NOT NULL,
		status TEXT NOT NULL,
		output TEXT,
		error TEXT,
		duration_ms INTEGER,
		FOREIGN KEY (schedule_id) REFERENCES schedules(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_executions_schedule ON executions(schedule_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Create creates a new schedule
func (s *Store) Create(schedule *Schedule) error {
	// Validate cron expression before inserting
	if err := ValidateCron(schedule.CronExpr); err != nil {
		return err
	}

	if schedule.ID == "" {
		schedule.ID = "sched_" + uuid.New().String()[:8]
	}
	if schedule.Overlap == "" {
		schedule.Overlap = OverlapSkip
	}
	now := time.Now()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	// Calculate next run time if not set
	if schedule.NextRunAt == nil && schedule.Enabled {
		nextRun, err := NextRun(schedule.CronExpr, now)
		if err == nil {
			schedule.NextRunAt = &nextRun
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO schedules (id, name, cron_expr, prompt, agent_type, project_dir, enabled, overlap,
		                       created_at, updated_at, last_run_at, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID, schedule.Name, schedule.CronExpr, schedule.Prompt,
		schedule.AgentType, schedule.ProjectDir, schedule.Enabled, schedule.Overlap,
		schedule.CreatedAt, schedule.UpdatedAt, schedule.LastRunAt, schedule.NextRunAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}

	return nil
}

func scanSchedule(scan func(dest ...any) error) (*Schedule, error) {
	var schedule Schedule
	var lastRunAt, nextRunAt sql.NullTime
	var enabled int

	if err := scan(
		&schedule.ID, &schedule.Name, &schedule.CronExpr, &schedule.Prompt,
		&schedule.AgentType, &schedule.ProjectDir, &enabled, &schedule.Overlap,
		&schedule.CreatedAt, &schedule.UpdatedAt, &lastRunAt, &nextRunAt,
	); err != nil {
		return nil, err
	}

	schedule.Enabled = enabled != 0
	if lastRunAt.Valid {
		schedule.LastRunAt = &lastRunAt.Time
	}
	if nextRunAt.Valid {
		schedule.NextRunAt = &nextRunAt.Time
	}
	return &schedule, nil
}

const scheduleColumns = `id, name, cron_expr, prompt, agent_type, project_dir, enabled, overlap,
	created_at, updated_at, last_run_at, next_run_at`

// Get retrieves a schedule by ID
func (s *Store) Get(id string) (*Schedule, error) {
	row := s.db.QueryRow(`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)

	schedule, err := scanSchedule(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}
	return schedule, nil
}

// List returns schedules matching the filter
func (s *Store) List(filter *ListFilter) ([]*Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	var args []interface{}
	var conditions []string

	if filter != nil {
		if filter.AgentType != "" {
			conditions = append(conditions, "agent_type = ?")
			args = append(args, filter.AgentType)
		}
		if filter.Enabled != nil {
			conditions = append(conditions, "enabled = ?")
			if *filter.Enabled {
				args = append(args, 1)
			} else {
				args = append(args, 0)
			}
		}
	}

	if len(conditions) > 0 {
		query += " WHERE " + conditions[0]
		for i := 1; i < len(conditions); i++ {
			query += " AND " + conditions[i]
		}
	}

	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var schedules []*Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, schedule)
	}

	return schedules, rows.Err()
}

// Update applies partial updates to a schedule
func (s *Store) Update(id string, update *ScheduleUpdate) error {
	// Validate cron expression if being updated
	if update.CronExpr != nil {
		if err := ValidateCron(*update.CronExpr); err != nil {
			return err
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Build dynamic update query
	var setClauses []string
	var args []interface{}
	var cronChanged bool

	if update.Name != nil {
		setClauses = append(setClauses, "name = ?")
		args = append(args, *update.Name)
	}
	if update.CronExpr != nil {
		setClauses = append(setClauses, "cron_expr = ?")
		args = append(args, *update.CronExpr)
		cronChanged = true
	}
	if update.Prompt != nil {
		setClauses = append(setClauses, "prompt = ?")
		args = append(args, *update.Prompt)
	}
	if update.Enabled != nil {
		setClauses = append(setClauses, "enabled = ?")
		if *update.Enabled {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}
	if update.Overlap != nil {
		setClauses = append(setClauses, "overlap = ?")
		args = append(args, *update.Overlap)
	}

	if len(setClauses) > 0 {
		setClauses = append(setClauses, "updated_at = ?")
		args = append(args, time.Now())
		args = append(args, id)

		query := "UPDATE schedules SET " + setClauses[0]
		for i := 1; i < len(setClauses); i++ {
			query += ", " + setClauses[i]
		}
		query += " WHERE id = ?"

		result, err := tx.Exec(query, args...)
		if err != nil {
			return fmt.Errorf("failed to update schedule: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return ErrScheduleNotFound
		}
	}

	// Recalculate next_run_at if cron expression changed
	if cronChanged {
		nextRun, err := NextRun(*update.CronExpr, time.Now())
		if err == nil {
			_, err = tx.Exec("UPDATE schedules SET next_run_at = ? WHERE id = ?", nextRun, id)
			if err != nil {
				return fmt.Errorf("failed to update next_run_at: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Delete removes a schedule and its executions (CASCADE)
func (s *Store) Delete(id string) error {
	result, err := s.db.Exec("DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrScheduleNotFound
	}

	return nil
}

// ListDue returns enabled schedules where next_run_at <= now
func (s *Store) ListDue(now time.Time) ([]*Schedule, error) {
	rows, err := s.db.Query(`
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE enabled = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at ASC`, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due schedules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var schedules []*Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, schedule)
	}

	return schedules, rows.Err()
}

// UpdateRunTimes updates last_run_at and next_run_at for a schedule
func (s *Store) UpdateRunTimes(id string, lastRun, nextRun time.Time) error {
	result, err := s.db.Exec(`
		UPDATE schedules SET last_run_at = ?, next_run_at = ?, updated_at = ?
		WHERE id = ?`,
		lastRun, nextRun, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update run times: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrScheduleNotFound
	}

	return nil
}

// RecordExecution stores one execution outcome
func (s *Store) RecordExecution(exec *Execution) error {
	if exec.ID == "" {
		exec.ID = "exec_" + uuid.New().String()[:8]
	}
	if exec.ExecutedAt.IsZero() {
		exec.ExecutedAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO executions (id, schedule_id, session_id, executed_at, status, output, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.ScheduleID, exec.SessionID, exec.ExecutedAt,
		exec.Status, exec.Output, exec.Error, exec.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	return nil
}

// ListExecutions returns the most recent executions for a schedule
func (s *Store) ListExecutions(scheduleID string, limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, schedule_id, session_id, executed_at, status, output, error, duration_ms
		FROM executions WHERE schedule_id = ?
		ORDER BY executed_at DESC LIMIT ?`, scheduleID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var execs []*Execution
	for rows.Next() {
		var exec Execution
		var sessionID, output, errMsg sql.NullString
		var durationMs sql.NullInt64

		if err := rows.Scan(
			&exec.ID, &exec.ScheduleID, &sessionID, &exec.ExecutedAt,
			&exec.Status, &output, &errMsg, &durationMs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		exec.SessionID = sessionID.String
		exec.Output = output.String
		exec.Error = errMsg.String
		exec.DurationMs = durationMs.Int64
		execs = append(execs, &exec)
	}

	return execs, rows.Err()
}
