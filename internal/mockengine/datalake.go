package mockengine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/periplon/metis/internal/apperr"
	"github.com/periplon/metis/internal/render"
)

// generateDataLake dispatches cfg.DataLakeCRUD.Operation to the
// Persistence Core's DataRecord table (spec §4.J), via the narrow
// DataLakeStore capability so this package never imports internal/persistence
// directly.
func (e *Engine) generateDataLake(ctx context.Context, cfg *MockConfig, args map[string]any) (any, error) {
	if e.DataLake == nil {
		return nil, &apperr.Validation{Field: "data_lake_crud", Reason: "no data lake store configured"}
	}
	dl := cfg.DataLakeCRUD
	if dl == nil || dl.DataLake == "" {
		return nil, &apperr.Validation{Field: "data_lake_crud.data_lake", Reason: "data_lake is required"}
	}

	switch dl.Operation {
	case DataLakeCreate:
		data, _ := args["data"].(map[string]any)
		return e.DataLake.Create(ctx, dl.DataLake, dl.SchemaName, data)
	case DataLakeReadByID:
		id, _ := args["id"].(string)
		if id == "" {
			return nil, &apperr.Validation{Field: "args.id", Reason: "id is required for read_by_id"}
		}
		return e.DataLake.ReadByID(ctx, dl.DataLake, id)
	case DataLakeReadAll:
		return e.DataLake.ReadAll(ctx, dl.DataLake, dl.Limit, dl.Offset)
	case DataLakeReadFilter:
		filter, err := renderFilter(dl.FilterTemplate, args)
		if err != nil {
			return nil, err
		}
		return e.DataLake.ReadFilter(ctx, dl.DataLake, filter)
	case DataLakeUpdate:
		id, _ := args["id"].(string)
		if id == "" {
			return nil, &apperr.Validation{Field: "args.id", Reason: "id is required for update"}
		}
		data, _ := args["data"].(map[string]any)
		return e.DataLake.Update(ctx, dl.DataLake, id, data)
	case DataLakeDelete:
		id, _ := args["id"].(string)
		if id == "" {
			return nil, &apperr.Validation{Field: "args.id", Reason: "id is required for delete"}
		}
		return nil, e.DataLake.Delete(ctx, dl.DataLake, id)
	default:
		return nil, &apperr.Validation{Field: "data_lake_crud.operation", Reason: fmt.Sprintf("unknown operation %q", dl.Operation)}
	}
}

func renderFilter(tmpl string, args map[string]any) (map[string]any, error) {
	if tmpl == "" {
		return nil, nil
	}
	out, err := render.ExecuteWithFuncs(tmpl, map[string]any{"args": args}, nil)
	if err != nil {
		return nil, fmt.Errorf("render filter_template: %w", err)
	}
	var filter map[string]any
	if err := json.Unmarshal(out, &filter); err != nil {
		return nil, &apperr.Validation{Field: "data_lake_crud.filter_template", Reason: fmt.Sprintf("rendered filter is not valid JSON: %v", err)}
	}
	return filter, nil
}
