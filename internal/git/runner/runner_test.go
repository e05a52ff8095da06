package runner

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestSanitizeArgs(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{nil, "<no-args>"},
		{[]string{"diff", "--cached"}, "diff"},
		{[]string{"diff", "name-only", "HEAD"}, "diff name-only"},
		{[]string{"/tmp/secret"}, "<redacted>"},
	}
	for _, tc := range cases {
		if got := sanitizeArgs(tc.in); got != tc.want {
			t.Fatalf("sanitizeArgs(%v)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestRedactTokens(t *testing.T) {
	got := redactTokens("fatal: https://user:pw@example.com/repo token=abc123")
	if strings.Contains(got, "pw@") || strings.Contains(got, "abc123") {
		t.Fatalf("credentials leaked: %q", got)
	}
}

func TestExecRunnerErrorIsSanitized(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available in PATH")
	}
	r := NewExecRunner("", 5*time.Second)
	_, err := r.Run(context.Background(), t.TempDir(), "rev-parse", "HEAD")
	if err == nil {
		t.Fatalf("expected error outside a repository")
	}
	if !strings.HasPrefix(err.Error(), "git rev-parse: ") {
		t.Fatalf("unexpected error prefix: %v", err)
	}
}
