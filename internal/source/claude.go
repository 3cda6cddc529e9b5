package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/zhaobenny/tokdash/internal/model"
)

// claudeLine is one line of a Claude Code project JSONL file.
type claudeLine struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
	Message   struct {
		ID    string `json:"id"`
		Role  string `json:"role"`
		Model string `json:"model"`
		Usage struct {
			InputTokens              count `json:"input_tokens"`
			Input                    count `json:"input"`
			OutputTokens             count `json:"output_tokens"`
			Output                   count `json:"output"`
			CacheCreationInputTokens count `json:"cache_creation_input_tokens"`
			CacheWriteTokens         count `json:"cache_write_tokens"`
			CacheReadInputTokens     count `json:"cache_read_input_tokens"`
			CacheReadTokens          count `json:"cache_read_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

// Claude reads Claude Code transcripts under ~/.claude/projects.
type Claude struct {
	Location *time.Location
}

func (Claude) Source() model.SourceID { return model.SourceClaude }

// Scan reads assistant messages from every *.jsonl file below root. Claude Code
// writes one API message several times, once per content block; all copies
// share the message id used as session key.
func (c Claude) Scan(ctx context.Context, root string) ([]model.RawUsageRecord, error) {
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
		err := eachLine(path, func(line []byte) {
			var raw claudeLine
			if err := json.Unmarshal(line, &raw); err != nil {
				// Skip malformed lines
				return
			}
			if raw.Message.Role != "assistant" && raw.Type != "assistant" {
				return
			}
			ts, ok := parseTime(raw.Timestamp, c.Location)
			if !ok {
				return
			}

			u := raw.Message.Usage
			rec := model.RawUsageRecord{
				Source:           model.SourceClaude,
				Application:      string(model.SourceClaude),
				RawModel:         raw.Message.Model,
				Timestamp:        ts,
				InputTokens:      first(u.InputTokens, u.Input),
				OutputTokens:     first(u.OutputTokens, u.Output),
				CacheReadTokens:  first(u.CacheReadInputTokens, u.CacheReadTokens),
				CacheWriteTokens: first(u.CacheCreationInputTokens, u.CacheWriteTokens),
				SessionKey:       raw.Message.ID,
			}
			if rec.SessionKey == "" {
				rec.SessionKey = raw.RequestID
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
