// Package source reads usage records from the local session logs of the
// supported coding assistants.
package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zhaobenny/tokdash/internal/model"
)

// Scanner reads every usage record under root. A missing root yields no
// records and no error. Malformed lines are skipped; files that cannot be read
// are reported in the returned error alongside the records that were read.
type Scanner interface {
	Source() model.SourceID
	Scan(ctx context.Context, root string) ([]model.RawUsageRecord, error)
}

// ScanError reports that one source could not be scanned.
type ScanError struct {
	Source model.SourceID
	Err    error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Source, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// rootExists reports whether root can be scanned. A missing root is not an error.
func rootExists(root string) (bool, error) {
	_, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// findFiles walks root and returns the files accepted by match, in lexical order.
func findFiles(ctx context.Context, root string, match func(path string, d fs.DirEntry) bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subdirectories are skipped.
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.IsDir() && match(path, d) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// eachLine calls fn for every non-empty line of a JSONL file.
func eachLine(path string, fn func(line []byte)) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	// Increase buffer size for large lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		fn(line)
	}
	return scanner.Err()
}

// count is a token count decoded from JSON. Absent, null, non-numeric, negative
// and fractional values leave it unset so they are never mistaken for real usage.
type count struct {
	n *int64
}

func (c *count) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil || f < 0 || f != math.Trunc(f) || f >= math.MaxInt64 {
		return nil
	}
	c.n = model.Int(int64(f))
	return nil
}

// first returns the first set count.
func first(cs ...count) *int64 {
	for _, c := range cs {
		if c.n != nil {
			return c.n
		}
	}
	return nil
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTime parses an RFC 3339 timestamp. Timestamps without a zone are
// interpreted in loc.
func parseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseEpoch interprets n as seconds or milliseconds since the epoch.
func parseEpoch(n float64) (time.Time, bool) {
	if n <= 0 {
		return time.Time{}, false
	}
	if n > 1e11 {
		return time.UnixMilli(int64(n)), true
	}
	return time.Unix(int64(n), 0), true
}

// parseStamp accepts a JSON string timestamp or a numeric epoch.
func parseStamp(raw json.RawMessage, loc *time.Location) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return parseEpoch(n)
		}
		return parseTime(s, loc)
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return parseEpoch(n)
	}
	return time.Time{}, false
}

func nonEmpty(r model.RawUsageRecord) bool {
	return !r.Empty()
}
