package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zero-day-ai/goap/batch"
	"github.com/zero-day-ai/goap/compress"
	"github.com/zero-day-ai/goap/pattern"
	"github.com/zero-day-ai/goap/state"
)

const schema = `
CREATE TABLE IF NOT EXISTS patterns (
	id                TEXT PRIMARY KEY,
	pattern_type      TEXT NOT NULL,
	goal_state        TEXT NOT NULL,
	current_state     TEXT NOT NULL,
	action_ids        TEXT NOT NULL,
	total_cost        REAL NOT NULL DEFAULT 0,
	sequence_success  REAL NOT NULL DEFAULT 1,
	condition_desc    TEXT NOT NULL DEFAULT '',
	times_used        INTEGER NOT NULL DEFAULT 0,
	success_count     INTEGER NOT NULL DEFAULT 0,
	average_cost      REAL NOT NULL DEFAULT 0,
	cost_variance     REAL NOT NULL DEFAULT 0,
	confidence        REAL NOT NULL DEFAULT 0.5,
	generalization    TEXT NOT NULL DEFAULT 'specific',
	payload           BLOB,
	payload_algorithm TEXT NOT NULL DEFAULT 'none',
	payload_metadata  TEXT NOT NULL DEFAULT '{}',
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL,
	last_used         TEXT
);
CREATE INDEX IF NOT EXISTS idx_patterns_confidence ON patterns(confidence DESC);
CREATE INDEX IF NOT EXISTS idx_patterns_type ON patterns(pattern_type);
`

// updatableColumns maps the field names accepted in a batch.FieldUpdate
// to their columns. Anything else is rejected per item.
var updatableColumns = map[string]string{
	"confidence":     "confidence",
	"times_used":     "times_used",
	"success_count":  "success_count",
	"average_cost":   "average_cost",
	"cost_variance":  "cost_variance",
	"generalization": "generalization",
	"condition_desc": "condition_desc",
	"last_used":      "last_used",
	"total_cost":     "total_cost",
}

// SQLiteOption configures a SQLite store.
type SQLiteOption func(*SQLite)

// WithCodec sets the payload codec. Default is gzip at the default
// compression level.
func WithCodec(c compress.Codec) SQLiteOption {
	return func(s *SQLite) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithLogger sets the store's logger. Nil selects slog.Default().
func WithLogger(logger *slog.Logger) SQLiteOption {
	return func(s *SQLite) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxConns bounds the connection pool.
func WithMaxConns(n int) SQLiteOption {
	return func(s *SQLite) {
		if n > 0 {
			s.maxConns = n
		}
	}
}

// SQLite persists patterns in a single SQLite database file. It
// satisfies pattern.Store.
type SQLite struct {
	db       *sql.DB
	codec    compress.Codec
	logger   *slog.Logger
	maxConns int
}

// OpenSQLite opens (creating if needed) the pattern database at path.
// Use ":memory:" for an ephemeral store.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLite, error) {
	s := &SQLite{
		codec:    compress.NewGzip(0),
		logger:   slog.Default(),
		maxConns: 4,
	}
	for _, opt := range opts {
		opt(s)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(s.maxConns)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	s.db = db
	return s, nil
}

// Get fetches one pattern by id. Missing ids return
// pattern.ErrNotFound.
func (s *SQLite) Get(ctx context.Context, id string) (*pattern.Pattern, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pattern_type, goal_state, current_state, action_ids,
		       total_cost, sequence_success, condition_desc,
		       times_used, success_count, average_cost, cost_variance, confidence,
		       generalization, payload, payload_algorithm, payload_metadata,
		       created_at, updated_at, last_used
		FROM patterns WHERE id = ?`, id)
	p, err := s.scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", pattern.ErrNotFound, id)
	}
	return p, err
}

// Insert stores a new pattern, compressing its payload.
func (s *SQLite) Insert(ctx context.Context, p *pattern.Pattern) error {
	goalJSON, err := json.Marshal(p.Context.GoalState)
	if err != nil {
		return fmt.Errorf("store: marshal goal state: %w", err)
	}
	currentJSON, err := json.Marshal(p.Context.CurrentState)
	if err != nil {
		return fmt.Errorf("store: marshal current state: %w", err)
	}
	actionJSON, err := json.Marshal(p.Sequence.ActionIDs)
	if err != nil {
		return fmt.Errorf("store: marshal action ids: %w", err)
	}

	var payload []byte
	algorithm := compress.AlgorithmNone
	metaJSON := []byte("{}")
	if len(p.Payload) > 0 {
		res, err := s.codec.Compress(p.Payload)
		if err != nil {
			return fmt.Errorf("store: compress payload: %w", err)
		}
		payload = res.Data
		algorithm = res.Algorithm
		if len(res.Metadata) > 0 {
			metaJSON, err = json.Marshal(res.Metadata)
			if err != nil {
				return fmt.Errorf("store: marshal payload metadata: %w", err)
			}
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO patterns (
			id, pattern_type, goal_state, current_state, action_ids,
			total_cost, sequence_success, condition_desc,
			times_used, success_count, average_cost, cost_variance, confidence,
			generalization, payload, payload_algorithm, payload_metadata,
			created_at, updated_at, last_used
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.Type), string(goalJSON), string(currentJSON), string(actionJSON),
		p.Sequence.TotalCost, p.Sequence.SuccessRate, p.Sequence.Condition,
		p.Metrics.TimesUsed, p.Metrics.SuccessCount, p.Metrics.AverageCost,
		p.Metrics.CostVariance, p.Metrics.Confidence,
		string(p.Generalization), payload, algorithm, string(metaJSON),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt), nullableTime(p.LastUsed))
	if err != nil {
		return fmt.Errorf("store: insert %s: %w", p.ID, err)
	}
	return nil
}

// Query returns patterns matching the filter.
func (s *SQLite) Query(ctx context.Context, f pattern.Filter) ([]*pattern.Pattern, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, pattern_type, goal_state, current_state, action_ids,
		       total_cost, sequence_success, condition_desc,
		       times_used, success_count, average_cost, cost_variance, confidence,
		       generalization, payload, payload_algorithm, payload_metadata,
		       created_at, updated_at, last_used
		FROM patterns WHERE 1=1`)
	var args []any
	if f.Type != "" {
		sb.WriteString(" AND pattern_type = ?")
		args = append(args, string(f.Type))
	}
	if f.MinConfidence > 0 {
		sb.WriteString(" AND confidence >= ?")
		args = append(args, f.MinConfidence)
	}
	switch f.OrderBy {
	case pattern.OrderByUsage:
		sb.WriteString(" ORDER BY times_used DESC, id")
	case pattern.OrderByConfidence:
		sb.WriteString(" ORDER BY confidence DESC, id")
	default:
		sb.WriteString(" ORDER BY id")
	}
	if f.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	var out []*pattern.Pattern
	for rows.Next() {
		p, err := s.scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	return out, nil
}

// ExecuteUpdates applies a batch of partial field updates in one
// transaction. Unknown fields and missing patterns yield per-item
// errors; database failures roll the whole batch back.
func (s *SQLite) ExecuteUpdates(ctx context.Context, updates []batch.FieldUpdate) ([]error, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now().UTC())
	errs := make([]error, len(updates))
	for i, u := range updates {
		cols := make([]string, 0, len(u.Fields)+1)
		args := make([]any, 0, len(u.Fields)+2)
		var bad error
		for field, value := range u.Fields {
			col, ok := updatableColumns[field]
			if !ok {
				bad = fmt.Errorf("store: field %q is not updatable", field)
				break
			}
			if ts, ok := value.(time.Time); ok {
				value = formatTime(ts)
			}
			cols = append(cols, col+" = ?")
			args = append(args, value)
		}
		if bad != nil {
			errs[i] = bad
			continue
		}
		if len(cols) == 0 {
			errs[i] = errors.New("store: empty field update")
			continue
		}
		cols = append(cols, "updated_at = ?")
		args = append(args, now, u.PatternID)

		res, err := tx.ExecContext(ctx,
			"UPDATE patterns SET "+strings.Join(cols, ", ")+" WHERE id = ?", args...)
		if err != nil {
			return nil, fmt.Errorf("store: update %s: %w", u.PatternID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			errs[i] = fmt.Errorf("%w: %s", pattern.ErrNotFound, u.PatternID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return errs, nil
}

// ApplyConfidence merges combined confidence updates in one
// transaction: each pattern's metrics are read once, decayed for
// staleness, folded over every observation in the group, and written
// back with a single UPDATE.
func (s *SQLite) ApplyConfidence(ctx context.Context, updates []batch.CombinedUpdate) ([]error, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	errs := make([]error, len(updates))
	for i, u := range updates {
		var m pattern.LearningMetrics
		var lastUsed sql.NullString
		err := tx.QueryRowContext(ctx, `
			SELECT times_used, success_count, average_cost, cost_variance, confidence, last_used
			FROM patterns WHERE id = ?`, u.PatternID).
			Scan(&m.TimesUsed, &m.SuccessCount, &m.AverageCost, &m.CostVariance, &m.Confidence, &lastUsed)
		if errors.Is(err, sql.ErrNoRows) {
			errs[i] = fmt.Errorf("%w: %s", pattern.ErrNotFound, u.PatternID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("store: read metrics %s: %w", u.PatternID, err)
		}

		m.Decay(u.Decay.Factor, parseNullTime(lastUsed), now)
		for _, obs := range u.Observations {
			m.Observe(obs.Success, obs.ActualCost)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE patterns SET
				times_used = ?, success_count = ?, average_cost = ?,
				cost_variance = ?, confidence = ?, last_used = ?, updated_at = ?
			WHERE id = ?`,
			m.TimesUsed, m.SuccessCount, m.AverageCost, m.CostVariance,
			m.Confidence, formatTime(now), formatTime(now), u.PatternID); err != nil {
			return nil, fmt.Errorf("store: write metrics %s: %w", u.PatternID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return errs, nil
}

// Stats aggregates over the full pattern population.
func (s *SQLite) Stats(ctx context.Context) (pattern.Stats, error) {
	var st pattern.Stats
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(confidence),
		       COALESCE(SUM(times_used), 0), COALESCE(SUM(success_count), 0)
		FROM patterns`).
		Scan(&st.TotalPatterns, &avg, &st.TotalUses, &st.TotalSuccesses)
	if err != nil {
		return pattern.Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	if avg.Valid {
		st.AverageConfidence = avg.Float64
	}
	return st, nil
}

// Close releases the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLite) scanPattern(row scanner) (*pattern.Pattern, error) {
	var (
		p           pattern.Pattern
		ptype       string
		goalJSON    string
		currentJSON string
		actionJSON  string
		gen         string
		payload     []byte
		algorithm   string
		metaJSON    string
		createdAt   string
		updatedAt   string
		lastUsed    sql.NullString
	)
	err := row.Scan(&p.ID, &ptype, &goalJSON, &currentJSON, &actionJSON,
		&p.Sequence.TotalCost, &p.Sequence.SuccessRate, &p.Sequence.Condition,
		&p.Metrics.TimesUsed, &p.Metrics.SuccessCount, &p.Metrics.AverageCost,
		&p.Metrics.CostVariance, &p.Metrics.Confidence,
		&gen, &payload, &algorithm, &metaJSON,
		&createdAt, &updatedAt, &lastUsed)
	if err != nil {
		return nil, err
	}

	p.Type = pattern.Type(ptype)
	p.Generalization = pattern.GeneralizationLevel(gen)

	if err := unmarshalState(goalJSON, &p.Context.GoalState); err != nil {
		return nil, fmt.Errorf("store: pattern %s goal state: %w", p.ID, err)
	}
	if err := unmarshalState(currentJSON, &p.Context.CurrentState); err != nil {
		return nil, fmt.Errorf("store: pattern %s current state: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(actionJSON), &p.Sequence.ActionIDs); err != nil {
		return nil, fmt.Errorf("store: pattern %s action ids: %w", p.ID, err)
	}

	if len(payload) > 0 {
		var meta map[string]string
		if metaJSON != "" && metaJSON != "{}" {
			if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
				return nil, fmt.Errorf("store: pattern %s payload metadata: %w", p.ID, err)
			}
		}
		raw, err := s.codec.Decompress(payload, algorithm, meta)
		if err != nil {
			return nil, fmt.Errorf("store: pattern %s payload: %w", p.ID, err)
		}
		p.Payload = raw
	}

	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("store: pattern %s created_at: %w", p.ID, err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("store: pattern %s updated_at: %w", p.ID, err)
	}
	p.LastUsed = parseNullTime(lastUsed)
	return &p, nil
}

func unmarshalState(raw string, dst *state.State) error {
	if raw == "" || raw == "null" {
		*dst = state.State{}
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}

func parseNullTime(ns sql.NullString) time.Time {
	if !ns.Valid || ns.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
