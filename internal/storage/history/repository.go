// Package history persists correlated exchanges and the projects they belong to.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Chiody/openbbox/internal/exchange"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("history: not found")
	// ErrAmbiguous is returned when an id prefix matches several records.
	ErrAmbiguous = errors.New("history: ambiguous id")
)

// DefaultListLimit bounds List and Search when no limit is given.
const DefaultListLimit = 50

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ListParams filters List and Search.
type ListParams struct {
	ProjectID string
	Limit     int
}

func (p ListParams) limit() int {
	if p.Limit <= 0 {
		return DefaultListLimit
	}
	return p.Limit
}

const exchangeColumns = `id, occurred_at, project_id, project_name, source_ide, model_name, session_id,
	prompt, response, title, reasoning, context_files, diffs, affected_files, score, status`

// Save stores a record, replacing any record with the same id, and refreshes its project.
func (r *Repository) Save(ctx context.Context, rec exchange.CorrelatedExchange) error {
	if rec.ID == "" {
		return errors.New("save exchange: empty id")
	}
	contextFiles, err := encodeJSON(rec.ContextFiles)
	if err != nil {
		return fmt.Errorf("encode context files: %w", err)
	}
	diffs, err := encodeJSON(rec.Diffs)
	if err != nil {
		return fmt.Errorf("encode diffs: %w", err)
	}
	affected, err := encodeJSON(rec.AffectedFiles)
	if err != nil {
		return fmt.Errorf("encode affected files: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO exchanges (`+exchangeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Timestamp.UnixNano(), rec.ProjectID, rec.ProjectName, string(rec.Source.IDE),
		nullIfEmpty(rec.Source.ModelName), nullIfEmpty(rec.Source.SessionID),
		rec.Prompt, rec.Response, rec.Title, nullIfEmpty(rec.ReasoningExcerpt),
		contextFiles, diffs, affected, rec.Score, string(rec.Status))
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}

	if rec.ProjectID != "" {
		if err := upsertProject(ctx, tx, UpsertProjectParams{
			Path:        rec.ProjectID,
			DisplayName: rec.ProjectName,
			LastSeen:    &rec.Timestamp,
		}); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// Get loads one record by id.
func (r *Repository) Get(ctx context.Context, id string) (exchange.CorrelatedExchange, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+exchangeColumns+` FROM exchanges WHERE id = ?`, id)
	rec, err := scanExchange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return exchange.CorrelatedExchange{}, fmt.Errorf("exchange %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// Resolve loads a record by full id or unique id prefix.
func (r *Repository) Resolve(ctx context.Context, idOrPrefix string) (exchange.CorrelatedExchange, error) {
	rec, err := r.Get(ctx, idOrPrefix)
	if err == nil || !errors.Is(err, ErrNotFound) || idOrPrefix == "" {
		return rec, err
	}
	matches, err := r.queryExchanges(ctx, `SELECT `+exchangeColumns+` FROM exchanges
		WHERE id LIKE ? ESCAPE '\' ORDER BY occurred_at DESC LIMIT 2`, escapeLike(idOrPrefix)+"%")
	if err != nil {
		return exchange.CorrelatedExchange{}, err
	}
	switch len(matches) {
	case 0:
		return exchange.CorrelatedExchange{}, fmt.Errorf("exchange %s: %w", idOrPrefix, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return exchange.CorrelatedExchange{}, fmt.Errorf("exchange %s: %w", idOrPrefix, ErrAmbiguous)
	}
}

// List returns records newest first.
func (r *Repository) List(ctx context.Context, params ListParams) ([]exchange.CorrelatedExchange, error) {
	query := `SELECT ` + exchangeColumns + ` FROM exchanges`
	var args []any
	if params.ProjectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, params.ProjectID)
	}
	query += ` ORDER BY occurred_at DESC, id DESC LIMIT ?`
	args = append(args, params.limit())
	return r.queryExchanges(ctx, query, args...)
}

// Search returns records whose prompt, response or title contains term, newest first.
func (r *Repository) Search(ctx context.Context, term string, params ListParams) ([]exchange.CorrelatedExchange, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return r.List(ctx, params)
	}
	pattern := "%" + escapeLike(term) + "%"
	query := `SELECT ` + exchangeColumns + ` FROM exchanges
		WHERE (prompt LIKE ? ESCAPE '\' OR response LIKE ? ESCAPE '\' OR title LIKE ? ESCAPE '\')`
	args := []any{pattern, pattern, pattern}
	if params.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, params.ProjectID)
	}
	query += ` ORDER BY occurred_at DESC, id DESC LIMIT ?`
	args = append(args, params.limit())
	return r.queryExchanges(ctx, query, args...)
}

// Delete removes one record.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM exchanges WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete exchange: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("exchange %s: %w", id, ErrNotFound)
	}
	return nil
}

// Count returns the number of stored records.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exchanges`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count exchanges: %w", err)
	}
	return n, nil
}

func (r *Repository) queryExchanges(ctx context.Context, query string, args ...any) ([]exchange.CorrelatedExchange, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	var out []exchange.CorrelatedExchange
	for rows.Next() {
		rec, err := scanExchange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exchanges: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExchange(s scanner) (exchange.CorrelatedExchange, error) {
	var (
		rec                           exchange.CorrelatedExchange
		occurred                      int64
		ide, status                   string
		model, session, reasoning     sql.NullString
		contextFiles, diffs, affected sql.NullString
	)
	err := s.Scan(&rec.ID, &occurred, &rec.ProjectID, &rec.ProjectName, &ide, &model, &session,
		&rec.Prompt, &rec.Response, &rec.Title, &reasoning, &contextFiles, &diffs, &affected, &rec.Score, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan exchange: %w", err)
	}
	rec.Timestamp = time.Unix(0, occurred).UTC()
	rec.Source = exchange.Source{IDE: exchange.SourceIDE(ide), ModelName: model.String, SessionID: session.String}
	rec.ReasoningExcerpt = reasoning.String
	rec.Status = exchange.Status(status)
	if err := decodeJSON(contextFiles, &rec.ContextFiles); err != nil {
		return rec, fmt.Errorf("decode context files for %s: %w", rec.ID, err)
	}
	if err := decodeJSON(diffs, &rec.Diffs); err != nil {
		return rec, fmt.Errorf("decode diffs for %s: %w", rec.ID, err)
	}
	if err := decodeJSON(affected, &rec.AffectedFiles); err != nil {
		return rec, fmt.Errorf("decode affected files for %s: %w", rec.ID, err)
	}
	return rec, nil
}

func encodeJSON[T any](v []T) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(payload), nil
}

func decodeJSON[T any](raw sql.NullString, dst *[]T) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw.String), dst)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
