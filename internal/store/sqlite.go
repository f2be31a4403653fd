package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Feaskye/SkyeAI-sub001/internal/model"

	_ "modernc.org/sqlite"
)

const createExecutionsTable = `
CREATE TABLE IF NOT EXISTS executions (
    execution_id      TEXT PRIMARY KEY,
    skill_id          TEXT NOT NULL,
    skill_name        TEXT NOT NULL,
    skill_version     TEXT NOT NULL,
    skill_type        TEXT NOT NULL DEFAULT '',
    skill_snapshot    TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL,
    input_parameters  TEXT NOT NULL DEFAULT '',
    output_result     TEXT NOT NULL DEFAULT '',
    error_message     TEXT NOT NULL DEFAULT '',
    start_time        DATETIME NOT NULL,
    end_time          DATETIME,
    execution_time_ms INTEGER
)`

const createExecutionsSkillIndex = `
CREATE INDEX IF NOT EXISTS idx_executions_skill ON executions (skill_name, start_time)`

const selectExecutionColumns = `SELECT execution_id, skill_id, skill_name, skill_version, skill_type,
	skill_snapshot, status, input_parameters, output_result, error_message,
	start_time, end_time, execution_time_ms
FROM executions`

// DefaultListLimit is applied when a filter carries no positive limit.
const DefaultListLimit = 50

// ErrNotFound is returned when an execution is not archived.
var ErrNotFound = errors.New("execution not found")

// ErrNotTerminal is returned when saving an execution that has not finished.
var ErrNotTerminal = errors.New("execution is not terminal")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// An in-memory database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range []struct{ name, sql string }{
		{"set WAL mode", "PRAGMA journal_mode=WAL"},
		{"set busy timeout", "PRAGMA busy_timeout = 5000"},
		{"create executions table", createExecutionsTable},
		{"create executions index", createExecutionsSkillIndex},
	} {
		if _, err := db.Exec(stmt.sql); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", stmt.name, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveExecution archives a terminal execution, replacing any previous row
// with the same id.
func (s *SQLiteStore) SaveExecution(ctx context.Context, rec *model.SkillExecution) error {
	if !rec.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotTerminal, rec.ExecutionID, rec.Status)
	}
	var skill model.Skill
	var snapshot string
	if rec.Skill != nil {
		skill = *rec.Skill
		data, err := json.Marshal(rec.Skill)
		if err != nil {
			return fmt.Errorf("marshal skill snapshot: %w", err)
		}
		snapshot = string(data)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO executions (
			execution_id, skill_id, skill_name, skill_version, skill_type,
			skill_snapshot, status, input_parameters, output_result, error_message,
			start_time, end_time, execution_time_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ExecutionID, skill.ID, skill.Name, skill.Version, skill.Type,
		snapshot, string(rec.Status), rec.InputParameters, rec.OutputResult, rec.ErrorMessage,
		rec.StartTime.UTC(), utcPtr(rec), rec.ExecutionTimeMs,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func utcPtr(rec *model.SkillExecution) any {
	if rec.EndTime == nil {
		return nil
	}
	return rec.EndTime.UTC()
}

// GetExecution retrieves an archived execution by id.
func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*model.SkillExecution, error) {
	rec, err := scanExecution(s.db.QueryRowContext(ctx, selectExecutionColumns+" WHERE execution_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return rec, nil
}

// ListExecutions returns a page of archived executions ordered by start time
// descending, along with the total number matching the filter.
func (s *SQLiteStore) ListExecutions(ctx context.Context, f ExecutionFilter) ([]*model.SkillExecution, int, error) {
	var conds []string
	var args []any
	if f.SkillName != "" {
		conds = append(conds, "skill_name = ?")
		args = append(args, f.SkillName)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := max(f.Offset, 0)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		selectExecutionColumns+where+" ORDER BY start_time DESC, execution_id DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []*model.SkillExecution
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate executions: %w", err)
	}

	return out, total, nil
}

// GetExecutionSummary computes aggregate statistics across the archive.
func (s *SQLiteStore) GetExecutionSummary(ctx context.Context) (*ExecutionSummary, error) {
	sum := &ExecutionSummary{
		CountByStatus: make(map[string]int),
		CountBySkill:  make(map[string]int),
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), AVG(execution_time_ms) FROM executions",
	).Scan(&sum.Total, &avg); err != nil {
		return nil, fmt.Errorf("count executions: %w", err)
	}
	if avg.Valid {
		sum.AvgDurationMS = avg.Float64
	}

	if err := s.groupCount(ctx, "status", sum.CountByStatus); err != nil {
		return nil, err
	}
	if err := s.groupCount(ctx, "skill_name || ':' || skill_version", sum.CountBySkill); err != nil {
		return nil, err
	}
	return sum, nil
}

func (s *SQLiteStore) groupCount(ctx context.Context, expr string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, "SELECT "+expr+", COUNT(*) FROM executions GROUP BY 1")
	if err != nil {
		return fmt.Errorf("group executions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan group: %w", err)
		}
		into[key] = n
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(row scanner) (*model.SkillExecution, error) {
	rec := &model.SkillExecution{Skill: &model.Skill{}}
	var snapshot, status string
	if err := row.Scan(
		&rec.ExecutionID, &rec.Skill.ID, &rec.Skill.Name, &rec.Skill.Version, &rec.Skill.Type,
		&snapshot, &status, &rec.InputParameters, &rec.OutputResult, &rec.ErrorMessage,
		&rec.StartTime, &rec.EndTime, &rec.ExecutionTimeMs,
	); err != nil {
		return nil, err
	}
	// Rows without a snapshot keep the skill columns scanned above.
	if snapshot != "" {
		if err := json.Unmarshal([]byte(snapshot), rec.Skill); err != nil {
			return nil, fmt.Errorf("decode skill snapshot: %w", err)
		}
	}
	rec.Status = model.ExecutionStatus(status)
	return rec, nil
}
