package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Project is a repository that has produced at least one record.
type Project struct {
	ID          int64     `json:"id"`
	Path        string    `json:"path"`
	DisplayName string    `json:"displayName,omitempty"`
	LastSeenAt  time.Time `json:"lastSeenAt,omitempty"`
	Exchanges   int       `json:"exchanges"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type UpsertProjectParams struct {
	Path        string
	DisplayName string
	LastSeen    *time.Time
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) UpsertProject(ctx context.Context, params UpsertProjectParams) (Project, error) {
	if err := upsertProject(ctx, r.db, params); err != nil {
		return Project{}, err
	}
	return r.GetProjectByPath(ctx, params.Path)
}

func upsertProject(ctx context.Context, db execer, params UpsertProjectParams) error {
	var lastSeen any
	if params.LastSeen != nil {
		lastSeen = params.LastSeen.UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO projects (path, display_name, last_seen_at)
		VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			display_name = COALESCE(excluded.display_name, projects.display_name),
			last_seen_at = CASE
				WHEN projects.last_seen_at IS NULL OR excluded.last_seen_at > projects.last_seen_at
				THEN excluded.last_seen_at ELSE projects.last_seen_at END,
			updated_at = CURRENT_TIMESTAMP
	`, params.Path, nullIfEmpty(params.DisplayName), lastSeen)
	if err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	return nil
}

const projectSelect = `
	SELECT p.id, p.path, p.display_name, p.last_seen_at, p.created_at, p.updated_at,
		(SELECT COUNT(*) FROM exchanges e WHERE e.project_id = p.path)
	FROM projects p`

// ListProjects returns projects, most recently active first.
func (r *Repository) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := r.db.QueryContext(ctx, projectSelect+`
		ORDER BY COALESCE(p.last_seen_at, p.updated_at) DESC, p.id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

func (r *Repository) GetProjectByPath(ctx context.Context, path string) (Project, error) {
	p, err := scanProject(r.db.QueryRowContext(ctx, projectSelect+` WHERE p.path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, fmt.Errorf("project %s: %w", path, ErrNotFound)
	}
	return p, err
}

func scanProject(s scanner) (Project, error) {
	var (
		p       Project
		display sql.NullString
		last    sql.NullTime
	)
	if err := s.Scan(&p.ID, &p.Path, &display, &last, &p.CreatedAt, &p.UpdatedAt, &p.Exchanges); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("scan project: %w", err)
	}
	p.DisplayName = display.String
	if last.Valid {
		p.LastSeenAt = last.Time
	}
	return p, nil
}
