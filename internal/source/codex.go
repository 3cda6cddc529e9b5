package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/zhaobenny/tokdash/internal/model"
)

type codexLine struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

type codexPayload struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Model string `json:"model"`
	Info  *struct {
		LastTokenUsage *struct {
			InputTokens       count `json:"input_tokens"`
			CachedInputTokens count `json:"cached_input_tokens"`
			OutputTokens      count `json:"output_tokens"`
		} `json:"last_token_usage"`
	} `json:"info"`
}

// Codex reads Codex CLI rollouts under ~/.codex/sessions.
type Codex struct {
	Location *time.Location
}

func (Codex) Source() model.SourceID { return model.SourceCodex }

// Scan emits one record per token_count event using the per-turn delta
// (last_token_usage). Codex counts cached input inside input_tokens, so the
// cached part is moved to CacheReadTokens.
func (c Codex) Scan(ctx context.Context, root string) ([]model.RawUsageRecord, error) {
	if ok, err := rootExists(root); !ok {
		return nil, err
	}

	files, err := findFiles(ctx, root, func(path string, _ fs.DirEntry) bool {
		return filepath.Ext(path) == ".jsonl"
	})
	if err != nil {
		return nil, err
	}

	var records []model.RawUsageRecord
	var errs []error
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		recs, err := c.scanFile(path)
		records = append(records, recs...)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	return records, errors.Join(errs...)
}

func (c Codex) scanFile(path string) ([]model.RawUsageRecord, error) {
	session := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	var modelName string
	var records []model.RawUsageRecord

	err := eachLine(path, func(line []byte) {
		var raw codexLine
		if err := json.Unmarshal(line, &raw); err != nil {
			return
		}
		var p codexPayload
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return
		}

		switch raw.Type {
		case "session_meta":
			if p.ID != "" {
				session = p.ID
			}
			return
		case "turn_context":
			if p.Model != "" {
				modelName = p.Model
			}
			return
		case "event_msg":
			if p.Type != "token_count" || p.Info == nil || p.Info.LastTokenUsage == nil {
				return
			}
		default:
			return
		}

		ts, ok := parseTime(raw.Timestamp, c.Location)
		if !ok {
			return
		}

		u := p.Info.LastTokenUsage
		input := u.InputTokens.n
		if input != nil && u.CachedInputTokens.n != nil {
			fresh := *input - *u.CachedInputTokens.n
			if fresh < 0 {
				fresh = 0
			}
			input = model.Int(fresh)
		}

		rec := model.RawUsageRecord{
			Source:          model.SourceCodex,
			Application:     string(model.SourceCodex),
			RawModel:        modelName,
			Timestamp:       ts,
			InputTokens:     input,
			OutputTokens:    u.OutputTokens.n,
			CacheReadTokens: u.CachedInputTokens.n,
			SessionKey:      session + ":" + raw.Timestamp,
		}
		if nonEmpty(rec) {
			records = append(records, rec)
		}
	})
	return records, err
}
