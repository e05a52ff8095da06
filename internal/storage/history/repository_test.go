package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Chiody/openbbox/internal/exchange"
	"github.com/Chiody/openbbox/internal/storage/migrate"
	"github.com/Chiody/openbbox/internal/storage/sqlite"
)

func newTestRepository(t *testing.T) (*Repository, *sql.DB) {
	t.Helper()

	db, err := sqlite.OpenMemory(strings.ReplaceAll(t.Name(), "/", "_"))
	if err != nil {
		t.Fatalf("open in-memory database: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := migrate.Up(db); err != nil {
		t.Fatalf("migrate database: %v", err)
	}

	return NewRepository(db), db
}

var base = time.Date(2026, 5, 4, 10, 0, 0, 123456789, time.UTC)

func record(id string, offset time.Duration, project, prompt string) exchange.CorrelatedExchange {
	return exchange.CorrelatedExchange{
		ID:               id,
		Timestamp:        base.Add(offset),
		ProjectID:        project,
		ProjectName:      strings.TrimPrefix(project, "/src/"),
		Source:           exchange.Source{IDE: exchange.SourceClaudeCode, ModelName: "sonnet", SessionID: "s1"},
		Prompt:           prompt,
		Response:         "I updated auth.js to fix the null check.",
		Title:            "Fix the login bug",
		ReasoningExcerpt: "the null check was backwards",
		ContextFiles:     []string{"auth.js"},
		Diffs:            []exchange.FileDiff{{Path: "src/auth.js", Kind: exchange.DiffModified, Hunk: "@@ -1 +1 @@\n-a\n+b"}},
		AffectedFiles:    []string{"src/auth.js"},
		Score:            0.78,
		Status:           exchange.StatusCompleted,
	}
}

func TestRepositorySaveAndGet(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	want := record("a1", 0, "/src/api", "please fix the login bug")
	if err := repo.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := repo.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}

func TestRepositorySaveReplaces(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	rec := record("a1", 0, "/src/api", "first")
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec.Prompt = "second"
	rec.Diffs = nil
	rec.AffectedFiles = nil
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("save again: %v", err)
	}
	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one record after replace, got %d", n)
	}
	got, err := repo.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Prompt != "second" || got.Diffs != nil {
		t.Fatalf("record not replaced: %+v", got)
	}
}

func TestRepositoryGetMissing(t *testing.T) {
	repo, _ := newTestRepository(t)
	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.Delete(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestRepositoryListNewestFirst(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	for i, p := range []string{"/src/api", "/src/web", "/src/api"} {
		rec := record(fmt.Sprintf("r%d", i), time.Duration(i)*time.Minute, p, fmt.Sprintf("prompt %d", i))
		if err := repo.Save(ctx, rec); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	all, err := repo.List(ctx, ListParams{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]string{"r2", "r1", "r0"}, ids(all)); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}

	api, err := repo.List(ctx, ListParams{ProjectID: "/src/api", Limit: 1})
	if err != nil {
		t.Fatalf("list project: %v", err)
	}
	if diff := cmp.Diff([]string{"r2"}, ids(api)); diff != "" {
		t.Fatalf("filtered (-want +got):\n%s", diff)
	}
}

func TestRepositorySearch(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	recs := []exchange.CorrelatedExchange{
		record("s0", 0, "/src/api", "rename the 100% handler"),
		record("s1", time.Minute, "/src/api", "add retries to fetch_user"),
		record("s2", 2*time.Minute, "/src/web", "add a dark mode toggle"),
	}
	for _, rec := range recs {
		if err := repo.Save(ctx, rec); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	cases := []struct {
		term    string
		project string
		want    []string
	}{
		{"add", "", []string{"s2", "s1"}},
		{"add", "/src/api", []string{"s1"}},
		{"100%", "", []string{"s0"}},
		{"fetch_", "", []string{"s1"}},
		{"k_m", "", nil},
		{"null check", "", []string{"s2", "s1", "s0"}},
	}
	for _, tc := range cases {
		got, err := repo.Search(ctx, tc.term, ListParams{ProjectID: tc.project})
		if err != nil {
			t.Fatalf("search %q: %v", tc.term, err)
		}
		if diff := cmp.Diff(tc.want, ids(got)); diff != "" {
			t.Fatalf("search %q (-want +got):\n%s", tc.term, diff)
		}
	}
}

func TestRepositoryProjectsTrackActivity(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	if err := repo.Save(ctx, record("p0", time.Hour, "/src/api", "late")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, record("p1", 0, "/src/api", "early")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, record("p2", 30*time.Minute, "/src/web", "web")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, record("p3", 0, "", "no project")); err != nil {
		t.Fatalf("save: %v", err)
	}

	projects, err := repo.ListProjects(ctx)
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("expected 2 projects, got %+v", projects)
	}
	api := projects[0]
	if api.Path != "/src/api" || api.DisplayName != "api" || api.Exchanges != 2 {
		t.Fatalf("unexpected first project: %+v", api)
	}
	if !api.LastSeenAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("last seen should keep the latest exchange, got %v", api.LastSeenAt)
	}

	if _, err := repo.GetProjectByPath(ctx, "/src/none"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepositoryUpsertProjectKeepsDisplayName(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	if _, err := repo.UpsertProject(ctx, UpsertProjectParams{Path: "/src/cli", DisplayName: "cli"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	p, err := repo.UpsertProject(ctx, UpsertProjectParams{Path: "/src/cli"})
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if p.ID == 0 || p.DisplayName != "cli" {
		t.Fatalf("unexpected project: %+v", p)
	}
	if !p.LastSeenAt.IsZero() {
		t.Fatalf("last seen should be unset, got %v", p.LastSeenAt)
	}
}

func TestRepositoryFailsOnCorruptPayload(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, `
		INSERT INTO exchanges (id, occurred_at, source_ide, prompt, response, title, diffs, status)
		VALUES ('bad', 1, 'Unknown', 'p', 'r', 't', '{invalid json', 'completed')
	`); err != nil {
		t.Fatalf("insert corrupt record: %v", err)
	}
	_, err := repo.List(ctx, ListParams{})
	if err == nil || !strings.Contains(err.Error(), "decode diffs") {
		t.Fatalf("expected decode diffs error, got %v", err)
	}
}

func ids(recs []exchange.CorrelatedExchange) []string {
	var out []string
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestRepositoryResolvePrefix(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()
	for _, id := range []string{"abc123", "abd456", "abd789"} {
		if err := repo.Save(ctx, record(id, 0, "", "p")); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	got, err := repo.Resolve(ctx, "abc")
	if err != nil || got.ID != "abc123" {
		t.Fatalf("resolve unique prefix -> %q, %v", got.ID, err)
	}
	if got, err := repo.Resolve(ctx, "abd789"); err != nil || got.ID != "abd789" {
		t.Fatalf("resolve full id -> %q, %v", got.ID, err)
	}
	if _, err := repo.Resolve(ctx, "abd"); !errors.Is(err, ErrAmbiguous) {
		t.Fatalf("expected ErrAmbiguous, got %v", err)
	}
	if _, err := repo.Resolve(ctx, "zz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
