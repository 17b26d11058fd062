package persistence

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/oklog/ulid/v2"

	"github.com/periplon/metis/internal/apperr"
)

// hashableChangeset is the deterministic wire shape hashed into commit_hash
// (spec §3: "ordered_changeset_bytes"). Field order matters for hash
// stability, which is why this isn't just json.Marshal(Changeset).
type hashableChangeset struct {
	Operation     Operation `json:"operation"`
	ArchetypeType string    `json:"archetype_type"`
	ArchetypeName string    `json:"archetype_name"`
	OldDefinition string    `json:"old_definition"`
	NewDefinition string    `json:"new_definition"`
}

// computeCommitHash implements spec §3's formula:
// commit_hash = SHA-256(parent_hash || ordered_changeset_bytes || committed_at || author || message).
func computeCommitHash(parentHash string, changesetBytes []byte, committedAt time.Time, author, message string) string {
	h := sha256.New()
	h.Write([]byte(parentHash))
	h.Write(changesetBytes)
	h.Write([]byte(committedAt.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte(author))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

func orderedChangesetBytes(deltas []Changeset) ([]byte, error) {
	wire := make([]hashableChangeset, len(deltas))
	for i, d := range deltas {
		wire[i] = hashableChangeset{
			Operation:     d.Operation,
			ArchetypeType: string(d.ArchetypeType),
			ArchetypeName: d.ArchetypeName,
			OldDefinition: string(d.OldDefinition),
			NewDefinition: string(d.NewDefinition),
		}
	}
	return json.Marshal(wire)
}

// Head returns the current HEAD commit hash, or "" if the log is empty.
func (s *Store) Head(ctx context.Context) (string, error) {
	query, _, err := s.goqu.From(s.tableCommits).
		Select("commit_hash").
		Order(goqu.I("committed_at").Desc(), goqu.I("id").Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return "", fmt.Errorf("persistence: build head query: %w", err)
	}

	var hash string
	err = s.db.QueryRowContext(ctx, query).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("persistence: head: %w", err)
	}
	return hash, nil
}

// CommitChangeset performs spec §4.J's write-through steps atomically: open
// a transaction, upsert every affected archetype row (bumping version or
// failing with VersionConflict), insert the changeset rows, insert the
// commit row chained to HEAD, snapshot if due, and advance HEAD.
//
// expectedVersions maps archetype name to the version the caller last read,
// for optimistic concurrency (spec §6's `expected_version`); pass a nil or
// zero entry to skip the check for creates.
func (s *Store) CommitChangeset(ctx context.Context, message, author string, deltas []Changeset, expectedVersions map[string]int64) (*Commit, error) {
	if len(deltas) == 0 {
		return nil, &apperr.Validation{Field: "deltas", Reason: "commit requires at least one changeset delta"}
	}

	s.headMu.Lock()
	defer s.headMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &apperr.PersistenceTransaction{Err: err}
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()

	for _, d := range deltas {
		if err := applyArchetypeDelta(ctx, tx, s, d, now, expectedVersions); err != nil {
			return nil, err
		}
	}

	parentHash, err := s.headWithTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	changesetBytes, err := orderedChangesetBytes(deltas)
	if err != nil {
		return nil, &apperr.PersistenceSerialization{Err: err}
	}

	hash := computeCommitHash(parentHash, changesetBytes, now, author, message)
	commitID := ulid.Make().String()

	insertCommit, _, err := s.goqu.Insert(s.tableCommits).Rows(goqu.Record{
		"id":           commitID,
		"commit_hash":  hash,
		"parent_hash":  nullIfEmpty(parentHash),
		"message":      message,
		"author":       nullIfEmpty(author),
		"committed_at": now.Format(time.RFC3339Nano),
		"is_snapshot":  0,
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("persistence: build commit insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertCommit); err != nil {
		return nil, &apperr.PersistenceTransaction{Err: err}
	}

	for _, d := range deltas {
		changesetID := ulid.Make().String()
		insertChangeset, _, err := s.goqu.Insert(s.tableChangesets).Rows(goqu.Record{
			"id":             changesetID,
			"commit_id":      commitID,
			"operation":      string(d.Operation),
			"archetype_type": string(d.ArchetypeType),
			"archetype_name": d.ArchetypeName,
			"old_definition": nullIfEmptyBytes(d.OldDefinition),
			"new_definition": nullIfEmptyBytes(d.NewDefinition),
		}).ToSQL()
		if err != nil {
			return nil, fmt.Errorf("persistence: build changeset insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insertChangeset); err != nil {
			return nil, &apperr.PersistenceTransaction{Err: err}
		}
	}

	sinceLastSnapshot, err := s.changesetCommitsSinceSnapshot(ctx, tx)
	if err != nil {
		return nil, err
	}
	if sinceLastSnapshot >= s.snapshotInterval {
		if err := s.writeSnapshot(ctx, tx, commitID, now, hash, author); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &apperr.PersistenceTransaction{Err: err}
	}

	return &Commit{
		ID:          commitID,
		Hash:        hash,
		ParentHash:  parentHash,
		Message:     message,
		Author:      author,
		CommittedAt: now,
	}, nil
}

func applyArchetypeDelta(ctx context.Context, tx *sql.Tx, s *Store, d Changeset, now time.Time, expectedVersions map[string]int64) error {
	switch d.Operation {
	case OpCreate:
		id := ulid.Make().String()
		insert, _, err := s.goqu.Insert(s.tableArchetypes).Rows(goqu.Record{
			"id":         id,
			"type":       string(d.ArchetypeType),
			"name":       d.ArchetypeName,
			"definition": string(d.NewDefinition),
			"version":    1,
			"created_at": now.Format(time.RFC3339Nano),
			"updated_at": now.Format(time.RFC3339Nano),
		}).ToSQL()
		if err != nil {
			return fmt.Errorf("persistence: build archetype insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insert); err != nil {
			return &apperr.Duplicate{Kind: string(d.ArchetypeType), ID: d.ArchetypeName}
		}
		return nil

	case OpUpdate, OpDelete:
		currentVersion, err := currentVersionTx(ctx, tx, s, d.ArchetypeType, d.ArchetypeName)
		if err != nil {
			return err
		}
		if expected, ok := expectedVersions[d.ArchetypeName]; ok && expected != 0 && expected != currentVersion {
			return &apperr.VersionConflict{Kind: string(d.ArchetypeType), ID: d.ArchetypeName, Expected: expected, Actual: currentVersion}
		}

		set := goqu.Record{
			"version":    currentVersion + 1,
			"updated_at": now.Format(time.RFC3339Nano),
		}
		if d.Operation == OpUpdate {
			set["definition"] = string(d.NewDefinition)
		} else {
			set["deleted_at"] = now.Format(time.RFC3339Nano)
		}

		update, _, err := s.goqu.Update(s.tableArchetypes).Set(set).
			Where(goqu.I("type").Eq(string(d.ArchetypeType)), goqu.I("name").Eq(d.ArchetypeName)).
			ToSQL()
		if err != nil {
			return fmt.Errorf("persistence: build archetype update: %w", err)
		}
		res, err := tx.ExecContext(ctx, update)
		if err != nil {
			return &apperr.PersistenceTransaction{Err: err}
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			return &apperr.NotFound{Kind: string(d.ArchetypeType), ID: d.ArchetypeName}
		}
		return nil
	}

	return &apperr.Validation{Field: "operation", Reason: fmt.Sprintf("unknown changeset operation %q", d.Operation)}
}

func currentVersionTx(ctx context.Context, tx *sql.Tx, s *Store, kind ArchetypeKind, name string) (int64, error) {
	query, _, err := s.goqu.From(s.tableArchetypes).
		Select("version").
		Where(goqu.I("type").Eq(string(kind)), goqu.I("name").Eq(name)).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("persistence: build version query: %w", err)
	}
	var version int64
	err = tx.QueryRowContext(ctx, query).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &apperr.NotFound{Kind: string(kind), ID: name}
	}
	if err != nil {
		return 0, &apperr.PersistenceTransaction{Err: err}
	}
	return version, nil
}

func (s *Store) headWithTx(ctx context.Context, tx *sql.Tx) (string, error) {
	query, _, err := s.goqu.From(s.tableCommits).
		Select("commit_hash").
		Order(goqu.I("committed_at").Desc(), goqu.I("id").Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return "", fmt.Errorf("persistence: build head query: %w", err)
	}
	var hash string
	err = tx.QueryRowContext(ctx, query).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", &apperr.PersistenceTransaction{Err: err}
	}
	return hash, nil
}

// changesetCommitsSinceSnapshot counts non-snapshot commits committed after
// the most recent snapshot commit (or all of them, if none exists yet).
func (s *Store) changesetCommitsSinceSnapshot(ctx context.Context, tx *sql.Tx) (int, error) {
	lastSnapshotQuery, _, err := s.goqu.From(s.tableCommits).
		Select("committed_at").
		Where(goqu.I("is_snapshot").Eq(1)).
		Order(goqu.I("committed_at").Desc()).
		Limit(1).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("persistence: build last-snapshot query: %w", err)
	}

	var lastSnapshotAt string
	err = tx.QueryRowContext(ctx, lastSnapshotQuery).Scan(&lastSnapshotAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, &apperr.PersistenceTransaction{Err: err}
	}

	countBuilder := s.goqu.From(s.tableCommits).
		Select(goqu.COUNT("*")).
		Where(goqu.I("is_snapshot").Eq(0))
	if lastSnapshotAt != "" {
		countBuilder = countBuilder.Where(goqu.I("committed_at").Gt(lastSnapshotAt))
	}

	query, _, err := countBuilder.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("persistence: build snapshot count query: %w", err)
	}
	var count int
	if err := tx.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, &apperr.PersistenceTransaction{Err: err}
	}
	return count, nil
}

// writeSnapshot inserts a snapshot_entries row for every live (non-deleted)
// archetype, grounded on spec §4.J step 5: "insert snapshot rows for all
// live archetypes" every K changeset commits.
func (s *Store) writeSnapshot(ctx context.Context, tx *sql.Tx, commitID string, now time.Time, hash, author string) error {
	query, _, err := s.goqu.From(s.tableArchetypes).
		Select("type", "name", "definition").
		Where(goqu.I("deleted_at").IsNull()).
		ToSQL()
	if err != nil {
		return fmt.Errorf("persistence: build snapshot select: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return &apperr.PersistenceTransaction{Err: err}
	}
	defer rows.Close()

	type liveRow struct{ typ, name, def string }
	var live []liveRow
	for rows.Next() {
		var r liveRow
		if err := rows.Scan(&r.typ, &r.name, &r.def); err != nil {
			return &apperr.PersistenceTransaction{Err: err}
		}
		live = append(live, r)
	}
	if err := rows.Err(); err != nil {
		return &apperr.PersistenceTransaction{Err: err}
	}

	for _, r := range live {
		insert, _, err := s.goqu.Insert(s.tableSnapshotEntries).Rows(goqu.Record{
			"commit_id":      commitID,
			"archetype_type": r.typ,
			"archetype_name": r.name,
			"definition":     r.def,
		}).ToSQL()
		if err != nil {
			return fmt.Errorf("persistence: build snapshot entry insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, insert); err != nil {
			return &apperr.PersistenceTransaction{Err: err}
		}
	}

	markSnapshot, _, err := s.goqu.Update(s.tableCommits).
		Set(goqu.Record{"is_snapshot": 1}).
		Where(goqu.I("id").Eq(commitID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("persistence: build mark-snapshot update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, markSnapshot); err != nil {
		return &apperr.PersistenceTransaction{Err: err}
	}

	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfEmptyBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
