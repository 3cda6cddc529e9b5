package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/zhaobenny/tokdash/internal/model"
)

type openClawEntry struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Timestamp json.RawMessage `json:"timestamp"`
	Message   struct {
		Role     string `json:"role"`
		Provider string `json:"provider"`
		Model    string `json:"model"`
		Usage    *struct {
			Input            count `json:"input"`
			InputTokens      count `json:"inputTokens"`
			Output           count `json:"output"`
			OutputTokens     count `json:"outputTokens"`
			CacheRead        count `json:"cacheRead"`
			CacheReadTokens  count `json:"cacheReadTokens"`
			CacheWrite       count `json:"cacheWrite"`
			CacheWriteTokens count `json:"cacheWriteTokens"`
		} `json:"usage"`
	} `json:"message"`
}

// OpenClaw reads agent session logs under ~/.openclaw/agents/*/sessions.
type OpenClaw struct {
	Location *time.Location
}

func (OpenClaw) Source() model.SourceID { return model.SourceOpenClaw }

// Scan reads session files including their .reset and .deleted rotations;
// lock files are skipped. Rotated copies repeat entry ids, which the merger
// collapses.
func (o OpenClaw) Scan(ctx context.Context, root string) ([]model.RawUsageRecord, error) {
	if ok, err := rootExists(root); !ok {
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(root, "agents", "*", "sessions", "*.jsonl*"))
	if err != nil {
		return nil, err
	}

	var records []model.RawUsageRecord
	var errs []error
	for _, path := range files {
		if strings.HasSuffix(path, ".lock") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return records, err
		}

		err := eachLine(path, func(line []byte) {
			var e openClawEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return
			}
			if e.Type != "message" || e.Message.Role != "assistant" || e.Message.Usage == nil {
				return
			}
			ts, ok := parseStamp(e.Timestamp, o.Location)
			if !ok {
				return
			}

			u := e.Message.Usage
			rec := model.RawUsageRecord{
				Source:           model.SourceOpenClaw,
				Application:      string(model.SourceOpenClaw),
				RawModel:         openClawModel(e.Message.Provider, e.Message.Model),
				Timestamp:        ts,
				InputTokens:      first(u.Input, u.InputTokens),
				OutputTokens:     first(u.Output, u.OutputTokens),
				CacheReadTokens:  first(u.CacheRead, u.CacheReadTokens),
				CacheWriteTokens: first(u.CacheWrite, u.CacheWriteTokens),
				SessionKey:       e.ID,
			}
			if nonEmpty(rec) {
				records = append(records, rec)
			}
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	return records, errors.Join(errs...)
}

// openClawModel qualifies the model with its provider, e.g. "github-copilot/gpt-4o".
func openClawModel(provider, name string) string {
	switch provider {
	case "", "unknown":
		return name
	}
	if name == "" {
		return ""
	}
	return provider + "/" + name
}
