package mockengine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/periplon/metis/internal/apperr"
)

// generateDatabase runs cfg.Database.Query against the configured
// database connection (spec §4.C's `database` strategy), with the list in
// args["params"] supplying the positional `?` parameters in order, and
// returns the result rows as a list of column→value
// maps (or a single map if exactly one row is returned).
func (e *Engine) generateDatabase(ctx context.Context, cfg *MockConfig, args map[string]any) (any, error) {
	if e.DB == nil {
		return nil, &apperr.Validation{Field: "database", Reason: "no database connection configured"}
	}
	dc := cfg.Database
	if dc == nil || dc.Query == "" {
		return nil, &apperr.Validation{Field: "database.query", Reason: "query is required"}
	}

	var params []any
	if raw, ok := args["params"].([]any); ok {
		params = raw
	}

	rows, err := e.DB.QueryContext(ctx, dc.Query, params...)
	if err != nil {
		return nil, fmt.Errorf("database strategy: %w", err)
	}
	defer rows.Close()

	records, err := scanRowsToMaps(rows)
	if err != nil {
		return nil, fmt.Errorf("database strategy: %w", err)
	}
	if len(records) == 1 {
		return records[0], nil
	}
	return records, nil
}

func scanRowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		rec := map[string]any{}
		for i, col := range cols {
			rec[col] = normalizeSQLValue(values[i])
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func normalizeSQLValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return t
	}
}
