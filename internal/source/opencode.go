package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/zhaobenny/tokdash/internal/model"
)

// OpenCodeDB is the database file name inside the OpenCode data directory.
const OpenCodeDB = "opencode.db"

type openCodeMessage struct {
	ID         string `json:"id"`
	SessionID  string `json:"sessionID"`
	Role       string `json:"role"`
	ModelID    string `json:"modelID"`
	ProviderID string `json:"providerID"`
	Tokens     *struct {
		Input  count `json:"input"`
		Output count `json:"output"`
		Cache  struct {
			Read  count `json:"read"`
			Write count `json:"write"`
		} `json:"cache"`
	} `json:"tokens"`
}

// OpenCode reads the OpenCode SQLite database, ~/.local/share/opencode/opencode.db.
// The JSON file storage next to it holds the same messages and is not read.
type OpenCode struct{}

func (OpenCode) Source() model.SourceID { return model.SourceOpenCode }

// Scan opens the database read-only and decodes every message row.
func (OpenCode) Scan(ctx context.Context, root string) ([]model.RawUsageRecord, error) {
	path := filepath.Join(root, OpenCodeDB)
	if ok, err := rootExists(path); !ok {
		return nil, err
	}

	db, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT id, data, time_created FROM message ORDER BY time_created`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var records []model.RawUsageRecord
	for rows.Next() {
		var id, data string
		var created int64
		if err := rows.Scan(&id, &data, &created); err != nil {
			return records, fmt.Errorf("scan message row: %w", err)
		}

		var msg openCodeMessage
		if err := json.Unmarshal([]byte(data), &msg); err != nil || msg.Tokens == nil {
			continue
		}
		if msg.ID != "" {
			id = msg.ID
		}

		rec := model.RawUsageRecord{
			Source:           model.SourceOpenCode,
			Application:      string(model.SourceOpenCode),
			RawModel:         msg.ModelID,
			Timestamp:        time.UnixMilli(created),
			InputTokens:      msg.Tokens.Input.n,
			OutputTokens:     msg.Tokens.Output.n,
			CacheReadTokens:  msg.Tokens.Cache.Read.n,
			CacheWriteTokens: msg.Tokens.Cache.Write.n,
			SessionKey:       id,
		}
		if nonEmpty(rec) {
			records = append(records, rec)
		}
	}
	return records, rows.Err()
}

func openReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
