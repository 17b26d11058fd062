package mockengine

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"

	"github.com/periplon/metis/internal/apperr"
)

// generateFile reads cfg.File.Path and selects one record per the
// configured selection mode. Format is inferred from the file extension
// when cfg.File.Format is empty: ".csv" → csv, ".jsonl"/".ndjson" → ndjson,
// anything else → a single top-level JSON array.
func (e *Engine) generateFile(cfg *MockConfig) (any, error) {
	fc := cfg.File
	if fc == nil || fc.Path == "" {
		return nil, &apperr.Validation{Field: "file.path", Reason: "path is required"}
	}

	records, err := readFileRecords(fc)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &apperr.MockOutputInvalid{Strategy: "file", Reason: fmt.Sprintf("%s contains no records", fc.Path)}
	}

	idx, err := e.selectFileIndex(fc, len(records))
	if err != nil {
		return nil, err
	}
	return records[idx], nil
}

func readFileRecords(fc *FileConfig) ([]any, error) {
	format := fc.Format
	if format == "" {
		switch {
		case strings.HasSuffix(fc.Path, ".csv"):
			format = "csv"
		case strings.HasSuffix(fc.Path, ".jsonl"), strings.HasSuffix(fc.Path, ".ndjson"):
			format = "ndjson"
		default:
			format = "array"
		}
	}

	f, err := os.Open(fc.Path)
	if err != nil {
		return nil, &apperr.MockOutputInvalid{Strategy: "file", Reason: err.Error()}
	}
	defer f.Close()

	switch format {
	case "ndjson":
		var out []any
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var v any
			if err := json.Unmarshal([]byte(line), &v); err != nil {
				return nil, &apperr.MockOutputInvalid{Strategy: "file", Reason: err.Error()}
			}
			out = append(out, v)
		}
		if err := scanner.Err(); err != nil {
			return nil, &apperr.MockOutputInvalid{Strategy: "file", Reason: err.Error()}
		}
		return out, nil
	case "csv":
		r := csv.NewReader(f)
		rows, err := r.ReadAll()
		if err != nil {
			return nil, &apperr.MockOutputInvalid{Strategy: "file", Reason: err.Error()}
		}
		if len(rows) == 0 {
			return nil, nil
		}
		header := rows[0]
		out := make([]any, 0, len(rows)-1)
		for _, row := range rows[1:] {
			rec := map[string]any{}
			for i, col := range header {
				if i < len(row) {
					rec[col] = row[i]
				}
			}
			out = append(out, rec)
		}
		return out, nil
	default: // array
		var arr []any
		if err := json.NewDecoder(f).Decode(&arr); err != nil {
			return nil, &apperr.MockOutputInvalid{Strategy: "file", Reason: err.Error()}
		}
		return arr, nil
	}
}

// selectFileIndex resolves FileSelection against the State Store for
// round_robin (keyed by file path, so repeated calls against the same
// file advance independently of other archetypes).
func (e *Engine) selectFileIndex(fc *FileConfig, n int) (int, error) {
	switch fc.Selection {
	case SelectionFirst, "":
		return 0, nil
	case SelectionLast:
		return n - 1, nil
	case SelectionRandom:
		return rand.Intn(n), nil
	case SelectionRoundRobin:
		key := "mockengine.file.round_robin:" + fc.Path
		next, err := e.State.Increment(key, 1)
		if err != nil {
			return 0, err
		}
		return int((next - 1) % int64(n)), nil
	default:
		idx, isIndex := fc.Index, fc.Selection == "index"
		if raw, ok := strings.CutPrefix(string(fc.Selection), "index:"); ok {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				return 0, &apperr.Validation{Field: "file.selection", Reason: fmt.Sprintf("invalid index in %q", fc.Selection)}
			}
			idx, isIndex = parsed, true
		}
		if !isIndex {
			return 0, &apperr.Validation{Field: "file.selection", Reason: fmt.Sprintf("unknown selection %q", fc.Selection)}
		}
		if idx < 0 || idx >= n {
			return 0, &apperr.Validation{Field: "file.selection", Reason: fmt.Sprintf("index %d out of range for %d records", idx, n)}
		}
		return idx, nil
	}
}
