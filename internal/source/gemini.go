package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zhaobenny/tokdash/internal/model"
)

// geminiSession is a Gemini CLI chat file, ~/.gemini/tmp/<project>/chats/session-*.json.
type geminiSession struct {
	SessionID string `json:"sessionId"`
	Messages  []struct {
		ID        string `json:"id"`
		Timestamp string `json:"timestamp"`
		Type      string `json:"type"`
		Model     string `json:"model"`
		Tokens    *struct {
			Input  count `json:"input"`
			Output count `json:"output"`
			Cached count `json:"cached"`
		} `json:"tokens"`
	} `json:"messages"`
}

// GeminiCLI reads Gemini CLI chat sessions under ~/.gemini.
type GeminiCLI struct {
	Location *time.Location
}

func (GeminiCLI) Source() model.SourceID { return model.SourceGeminiCLI }

// Scan reads "gemini" messages that carry token counts. Tool and thought
// tokens are not mapped.
func (g GeminiCLI) Scan(ctx context.Context, root string) ([]model.RawUsageRecord, error) {
	if ok, err := rootExists(root); !ok {
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(root, "tmp", "*", "chats", "session-*.json"))
	if err != nil {
		return nil, err
	}

	var records []model.RawUsageRecord
	var errs []error
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		var session geminiSession
		if err := json.Unmarshal(data, &session); err != nil {
			// Partially written session files are skipped.
			continue
		}

		for _, msg := range session.Messages {
			if msg.Type != "gemini" || msg.Tokens == nil {
				continue
			}
			ts, ok := parseTime(msg.Timestamp, g.Location)
			if !ok {
				continue
			}
			rec := model.RawUsageRecord{
				Source:          model.SourceGeminiCLI,
				Application:     string(model.SourceGeminiCLI),
				RawModel:        msg.Model,
				Timestamp:       ts,
				InputTokens:     msg.Tokens.Input.n,
				OutputTokens:    msg.Tokens.Output.n,
				CacheReadTokens: msg.Tokens.Cached.n,
				SessionKey:      msg.ID,
			}
			if nonEmpty(rec) {
				records = append(records, rec)
			}
		}
	}
	return records, errors.Join(errs...)
}
