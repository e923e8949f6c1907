// Package transcript reconciles session token usage from Claude Code
// JSONL transcript files. Hook events carry no usage data; transcripts
// hold cumulative counters that are re-read whenever the file changes.
package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/theirongolddev/aimon/internal/config"
	"github.com/theirongolddev/aimon/internal/store"
)

// Usage is the cumulative token usage extracted from one transcript
// file, plus the session token and model identifier when the file
// carried them.
type Usage struct {
	SessionID  string
	Model      string
	Input      int64
	Output     int64
	CacheRead  int64
	CacheWrite int64
}

// Informative reports whether the file yielded enough to act on. A
// missing session token, or zero input and output, means the file is
// partially written or not a session transcript; writing then would
// clobber real totals with zeros.
func (u Usage) Informative() bool {
	return u.SessionID != "" && (u.Input > 0 || u.Output > 0)
}

// trackerEntry matches the per-model usage maps under "costTracker".
type trackerEntry struct {
	InputTokens      int64 `json:"inputTokens"`
	OutputTokens     int64 `json:"outputTokens"`
	CacheReadTokens  int64 `json:"cacheReadTokens"`
	CacheWriteTokens int64 `json:"cacheWriteTokens"`
}

// rawLine is the subset of a transcript record the parser cares about.
// Everything else on the line is ignored.
type rawLine struct {
	CostTracker map[string]json.RawMessage `json:"costTracker"`
	SessionIDA  string                     `json:"sessionId"`
	SessionIDB  string                     `json:"session_id"`
}

// ParseFile reads a JSONL transcript and accumulates usage across every
// costTracker record. Lines that fail to parse are skipped; transcripts
// are appended to live and routinely end mid-write.
func ParseFile(path string) (Usage, error) {
	var u Usage

	if filepath.Ext(path) != ".jsonl" {
		return u, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return u, err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), 2*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw rawLine
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}

		for modelKey, payload := range raw.CostTracker {
			var entry trackerEntry
			if err := json.Unmarshal(payload, &entry); err != nil {
				continue
			}
			u.Input += entry.InputTokens
			u.Output += entry.OutputTokens
			u.CacheRead += entry.CacheReadTokens
			u.CacheWrite += entry.CacheWriteTokens
			if u.Model == "" && modelKey != "" {
				u.Model = modelKey
			}
		}

		if u.SessionID == "" {
			if raw.SessionIDA != "" {
				u.SessionID = raw.SessionIDA
			} else if raw.SessionIDB != "" {
				u.SessionID = raw.SessionIDB
			}
		}
	}

	return u, scanner.Err()
}

// Reconciler applies parsed transcript usage to the store.
type Reconciler struct {
	store     *store.Store
	overrides config.PricingOverrides
	log       *slog.Logger
}

// NewReconciler returns a reconciler writing to st with the given
// pricing overrides.
func NewReconciler(st *store.Store, overrides config.PricingOverrides, log *slog.Logger) *Reconciler {
	return &Reconciler{store: st, overrides: overrides, log: log}
}

// ReconcileFile parses one transcript and replaces the session's stored
// totals with the file's cumulative counters. Idempotent: re-parsing an
// unchanged file rewrites the same values. Uninformative files produce
// no write at all.
func (r *Reconciler) ReconcileFile(ctx context.Context, path string) error {
	u, err := ParseFile(path)
	if err != nil {
		return err
	}
	if !u.Informative() {
		return nil
	}

	pricing := config.MatchTierPricing(u.Model, r.overrides)
	cost := config.CalculateCost(pricing, u.Input, u.Output, u.CacheRead, u.CacheWrite)

	return r.store.ReplaceSessionUsage(ctx, u.SessionID,
		u.Input, u.Output, u.CacheRead, u.CacheWrite, cost, u.Model)
}
