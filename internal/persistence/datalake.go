package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/oklog/ulid/v2"

	"github.com/periplon/metis/internal/apperr"
)

// DataLake implements internal/mockengine.DataLakeStore over the
// data_records table (spec §3's DataRecord: "non-versioned... Data lakes
// themselves are archetypes and versioned; their records are not").
type DataLake struct{ s *Store }

// DataLake returns the data-lake record store view of this persistence
// core.
func (s *Store) DataLake() *DataLake { return &DataLake{s: s} }

func (d *DataLake) Create(ctx context.Context, lake, schemaName string, data map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, &apperr.PersistenceSerialization{Err: err}
	}

	id := ulid.Make().String()
	now := time.Now().UTC()

	query, _, err := d.s.goqu.Insert(d.s.tableDataRecords).Rows(goqu.Record{
		"id":          id,
		"data_lake":   lake,
		"schema_name": schemaName,
		"data":        string(payload),
		"created_at":  now.Format(time.RFC3339Nano),
		"updated_at":  now.Format(time.RFC3339Nano),
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("persistence: build data record insert: %w", err)
	}
	if _, err := d.s.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("persistence: create data record: %w", err)
	}

	return d.ReadByID(ctx, lake, id)
}

func (d *DataLake) ReadByID(ctx context.Context, lake, id string) (map[string]any, error) {
	query, _, err := d.s.goqu.From(d.s.tableDataRecords).
		Select("id", "data", "created_at", "updated_at", "created_by", "metadata").
		Where(goqu.I("data_lake").Eq(lake), goqu.I("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("persistence: build data record query: %w", err)
	}

	row := d.s.db.QueryRowContext(ctx, query)
	rec, err := scanDataRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperr.NotFound{Kind: "data_record", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return recordToMap(rec), nil
}

func (d *DataLake) ReadAll(ctx context.Context, lake string, limit, offset int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 100
	}
	query, _, err := d.s.goqu.From(d.s.tableDataRecords).
		Select("id", "data", "created_at", "updated_at", "created_by", "metadata").
		Where(goqu.I("data_lake").Eq(lake)).
		Order(goqu.I("created_at").Asc()).
		Limit(uint(limit)).
		Offset(uint(offset)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("persistence: build data record list query: %w", err)
	}
	return d.queryRecords(ctx, query)
}

// ReadFilter matches records whose top-level `data` fields equal every
// key/value in filter. Filtering happens in Go (over the decoded JSON, not
// pushed into SQL) since data is stored as an opaque JSON blob.
func (d *DataLake) ReadFilter(ctx context.Context, lake string, filter map[string]any) ([]map[string]any, error) {
	query, _, err := d.s.goqu.From(d.s.tableDataRecords).
		Select("id", "data", "created_at", "updated_at", "created_by", "metadata").
		Where(goqu.I("data_lake").Eq(lake)).
		Order(goqu.I("created_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("persistence: build data record filter query: %w", err)
	}

	all, err := d.queryRecords(ctx, query)
	if err != nil {
		return nil, err
	}

	var matched []map[string]any
	for _, rec := range all {
		data, _ := rec["data"].(map[string]any)
		if matchesFilter(data, filter) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

func matchesFilter(data, filter map[string]any) bool {
	for k, v := range filter {
		got, ok := data[k]
		if !ok {
			return false
		}
		gotJSON, _ := json.Marshal(got)
		wantJSON, _ := json.Marshal(v)
		if string(gotJSON) != string(wantJSON) {
			return false
		}
	}
	return true
}

func (d *DataLake) Update(ctx context.Context, lake, id string, data map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, &apperr.PersistenceSerialization{Err: err}
	}

	query, _, err := d.s.goqu.Update(d.s.tableDataRecords).
		Set(goqu.Record{"data": string(payload), "updated_at": time.Now().UTC().Format(time.RFC3339Nano)}).
		Where(goqu.I("data_lake").Eq(lake), goqu.I("id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("persistence: build data record update: %w", err)
	}

	res, err := d.s.db.ExecContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("persistence: update data record: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, &apperr.NotFound{Kind: "data_record", ID: id}
	}

	return d.ReadByID(ctx, lake, id)
}

func (d *DataLake) Delete(ctx context.Context, lake, id string) error {
	query, _, err := d.s.goqu.Delete(d.s.tableDataRecords).
		Where(goqu.I("data_lake").Eq(lake), goqu.I("id").Eq(id)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("persistence: build data record delete: %w", err)
	}

	res, err := d.s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("persistence: delete data record: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return &apperr.NotFound{Kind: "data_record", ID: id}
	}
	return nil
}

func (d *DataLake) queryRecords(ctx context.Context, query string) ([]map[string]any, error) {
	rows, err := d.s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("persistence: query data records: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		rec, err := scanDataRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, recordToMap(rec))
	}
	return out, rows.Err()
}

func scanDataRecord(row scannable) (*DataRecord, error) {
	var (
		rec                  DataRecord
		data                 string
		createdAt, updatedAt string
		createdBy, metadata  sql.NullString
	)
	if err := row.Scan(&rec.ID, &data, &createdAt, &updatedAt, &createdBy, &metadata); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return nil, &apperr.PersistenceSerialization{Err: err}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &rec.Metadata); err != nil {
			return nil, &apperr.PersistenceSerialization{Err: err}
		}
	}
	rec.CreatedBy = createdBy.String

	ct, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse created_at: %w", err)
	}
	rec.CreatedAt = ct

	ut, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse updated_at: %w", err)
	}
	rec.UpdatedAt = ut

	return &rec, nil
}

func recordToMap(rec *DataRecord) map[string]any {
	return map[string]any{
		"id":         rec.ID,
		"data":       rec.Data,
		"created_at": rec.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": rec.UpdatedAt.Format(time.RFC3339Nano),
		"created_by": rec.CreatedBy,
		"metadata":   rec.Metadata,
	}
}
