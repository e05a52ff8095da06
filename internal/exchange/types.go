package exchange

import (
	"regexp"
	"strings"
	"time"
)

// SourceIDE identifies the tool an exchange was captured from.
type SourceIDE string

const (
	SourceCursor     SourceIDE = "Cursor"
	SourceTrae       SourceIDE = "Trae"
	SourceClaudeCode SourceIDE = "ClaudeCode"
	SourceVSCode     SourceIDE = "VSCode"
	SourceWindsurf   SourceIDE = "Windsurf"
	SourceCodex      SourceIDE = "Codex"
	SourceKiro       SourceIDE = "Kiro"
	SourceCline      SourceIDE = "Cline"
	SourceAider      SourceIDE = "Aider"
	SourceUnknown    SourceIDE = "Unknown"
)

var knownSources = []SourceIDE{
	SourceCursor, SourceTrae, SourceClaudeCode, SourceVSCode, SourceWindsurf,
	SourceCodex, SourceKiro, SourceCline, SourceAider,
}

// ParseSource maps a case-insensitive name to a SourceIDE, falling back to SourceUnknown.
func ParseSource(name string) SourceIDE {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, s := range knownSources {
		if strings.ToLower(string(s)) == name {
			return s
		}
	}
	return SourceUnknown
}

// RawExchange is one prompt/response pair as produced by a capture adapter.
type RawExchange struct {
	Timestamp    time.Time `json:"timestamp"`
	Prompt       string    `json:"prompt"`
	Response     string    `json:"response"`
	ModelName    string    `json:"modelName,omitempty"`
	SessionID    string    `json:"sessionId,omitempty"`
	ContextFiles []string  `json:"contextFiles,omitempty"`
	ProjectName  string    `json:"projectName,omitempty"`
	ProjectPath  string    `json:"projectPath,omitempty"`
}

var (
	userQueryTag   = regexp.MustCompile(`</?user_query>\s*`)
	systemReminder = regexp.MustCompile(`(?s)</?system_reminder>.*?</system_reminder>`)
)

// Normalize strips wrapper markup that IDE transcripts embed in prompts and responses.
func (r RawExchange) Normalize() RawExchange {
	r.Prompt = userQueryTag.ReplaceAllString(r.Prompt, "")
	r.Prompt = strings.TrimSpace(systemReminder.ReplaceAllString(r.Prompt, ""))
	r.Response = strings.TrimSpace(systemReminder.ReplaceAllString(r.Response, ""))
	return r
}

// Complete reports whether both sides of the exchange carry text.
func (r RawExchange) Complete() bool {
	return strings.TrimSpace(r.Prompt) != "" && strings.TrimSpace(r.Response) != ""
}

// ChangeKind classifies an observed file-system change.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// FileChangeEvent is a single change reported by the watcher.
type FileChangeEvent struct {
	Path      string     `json:"path"`
	Kind      ChangeKind `json:"kind"`
	Timestamp time.Time  `json:"timestamp"`
}

// DiffKind classifies a file section in a unified diff.
type DiffKind string

const (
	DiffAdded    DiffKind = "added"
	DiffModified DiffKind = "modified"
	DiffDeleted  DiffKind = "deleted"
	DiffRenamed  DiffKind = "renamed"
)

// DiffKindFor maps a watcher change kind onto the diff vocabulary.
func DiffKindFor(k ChangeKind) DiffKind {
	switch k {
	case ChangeCreated:
		return DiffAdded
	case ChangeDeleted:
		return DiffDeleted
	default:
		return DiffModified
	}
}

// FileDiff is the parsed diff for one file. Hunk holds the raw hunk lines and may be empty.
type FileDiff struct {
	Path string   `json:"path"`
	Kind DiffKind `json:"kind"`
	Hunk string   `json:"hunk"`
}

// Status of a correlated record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Source describes where an exchange came from.
type Source struct {
	IDE       SourceIDE `json:"ide"`
	ModelName string    `json:"modelName,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
}

// CorrelatedExchange is the attributed history record emitted per exchange.
type CorrelatedExchange struct {
	ID               string     `json:"id"`
	Timestamp        time.Time  `json:"timestamp"`
	ProjectID        string     `json:"projectId,omitempty"`
	ProjectName      string     `json:"projectName,omitempty"`
	Source           Source     `json:"source"`
	Prompt           string     `json:"prompt"`
	Response         string     `json:"response"`
	Title            string     `json:"title"`
	ReasoningExcerpt string     `json:"reasoningExcerpt,omitempty"`
	ContextFiles     []string   `json:"contextFiles,omitempty"`
	Diffs            []FileDiff `json:"diffs,omitempty"`
	AffectedFiles    []string   `json:"affectedFiles,omitempty"`
	Score            float64    `json:"score"`
	Status           Status     `json:"status"`
}
