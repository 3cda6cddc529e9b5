package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/zhaobenny/tokdash/internal/model"
)

type tokscaleExport struct {
	Entries []struct {
		Source     string          `json:"source"`
		Model      string          `json:"model"`
		Provider   string          `json:"provider"`
		Input      count           `json:"input"`
		Output     count           `json:"output"`
		CacheRead  count           `json:"cacheRead"`
		CacheWrite count           `json:"cacheWrite"`
		Timestamp  json.RawMessage `json:"timestamp"`
		ID         string          `json:"id"`
		MessageID  string          `json:"messageId"`
	} `json:"entries"`
}

// Tokscale reads a tokscale-compatible JSON export ({"entries": [...]}) as the
// fallback source. Each entry keeps the tool it came from as Application.
type Tokscale struct {
	Location *time.Location
	// Exclude lists applications whose entries are dropped because a direct
	// source already covers them without shared session keys.
	Exclude []string
}

func (Tokscale) Source() model.SourceID { return model.SourceFallback }

// Scan reads the export file at root.
func (t Tokscale) Scan(ctx context.Context, root string) ([]model.RawUsageRecord, error) {
	if ok, err := rootExists(root); !ok {
		return nil, err
	}
	data, err := os.ReadFile(root)
	if err != nil {
		return nil, err
	}
	var export tokscaleExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("decode %s: %w", root, err)
	}

	var records []model.RawUsageRecord
	for _, e := range export.Entries {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		app := strings.ToLower(strings.TrimSpace(e.Source))
		if app == "" {
			app = "unknown"
		}
		if t.excluded(app) {
			continue
		}
		ts, ok := parseStamp(e.Timestamp, t.Location)
		if !ok {
			continue
		}

		rawModel := e.Model
		if e.Provider != "" && e.Model != "" {
			rawModel = e.Provider + "/" + e.Model
		}
		key := e.MessageID
		if key == "" {
			key = e.ID
		}

		rec := model.RawUsageRecord{
			Source:           model.SourceFallback,
			Application:      app,
			RawModel:         rawModel,
			Timestamp:        ts,
			InputTokens:      e.Input.n,
			OutputTokens:     e.Output.n,
			CacheReadTokens:  e.CacheRead.n,
			CacheWriteTokens: e.CacheWrite.n,
			SessionKey:       key,
		}
		if nonEmpty(rec) {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (t Tokscale) excluded(app string) bool {
	for _, x := range t.Exclude {
		if strings.EqualFold(x, app) {
			return true
		}
	}
	return false
}
