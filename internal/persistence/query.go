package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/periplon/metis/internal/apperr"
)

// Commits lists commits newest-first (spec §4.J's commits(limit, offset)).
func (s *Store) Commits(ctx context.Context, limit, offset int) ([]Commit, error) {
	if limit <= 0 {
		limit = 50
	}
	query, _, err := s.goqu.From(s.tableCommits).
		Select("id", "commit_hash", "parent_hash", "message", "author", "committed_at", "is_snapshot").
		Order(goqu.I("committed_at").Desc(), goqu.I("id").Desc()).
		Limit(uint(limit)).
		Offset(uint(offset)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("persistence: build commits query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("persistence: commits: %w", err)
	}
	defer rows.Close()

	var out []Commit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Commit returns one commit and its changesets (spec §4.J's commit(hash)).
func (s *Store) Commit(ctx context.Context, hash string) (*Commit, []Changeset, error) {
	query, _, err := s.goqu.From(s.tableCommits).
		Select("id", "commit_hash", "parent_hash", "message", "author", "committed_at", "is_snapshot").
		Where(goqu.I("commit_hash").Eq(hash)).
		ToSQL()
	if err != nil {
		return nil, nil, fmt.Errorf("persistence: build commit query: %w", err)
	}

	row := s.db.QueryRowContext(ctx, query)
	c, err := scanCommitRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, &apperr.CommitNotFound{Hash: hash}
	}
	if err != nil {
		return nil, nil, err
	}

	changesets, err := s.changesetsForCommit(ctx, c.ID)
	if err != nil {
		return nil, nil, err
	}

	return &c, changesets, nil
}

func (s *Store) changesetsForCommit(ctx context.Context, commitID string) ([]Changeset, error) {
	query, _, err := s.goqu.From(s.tableChangesets).
		Select("commit_id", "operation", "archetype_type", "archetype_name", "old_definition", "new_definition").
		Where(goqu.I("commit_id").Eq(commitID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("persistence: build changesets query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("persistence: changesets: %w", err)
	}
	defer rows.Close()

	var out []Changeset
	for rows.Next() {
		var (
			cs               Changeset
			op, typ          string
			oldDef, newDef   sql.NullString
		)
		if err := rows.Scan(&cs.CommitID, &op, &typ, &cs.ArchetypeName, &oldDef, &newDef); err != nil {
			return nil, fmt.Errorf("persistence: scan changeset: %w", err)
		}
		cs.Operation = Operation(op)
		cs.ArchetypeType = ArchetypeKind(typ)
		if oldDef.Valid {
			cs.OldDefinition = []byte(oldDef.String)
		}
		if newDef.Valid {
			cs.NewDefinition = []byte(newDef.String)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func scanCommit(rows *sql.Rows) (Commit, error) {
	var (
		c                   Commit
		parentHash, author  sql.NullString
		committedAt         string
		isSnapshot          int
	)
	if err := rows.Scan(&c.ID, &c.Hash, &parentHash, &c.Message, &author, &committedAt, &isSnapshot); err != nil {
		return Commit{}, fmt.Errorf("persistence: scan commit: %w", err)
	}
	c.ParentHash = parentHash.String
	c.Author = author.String
	c.IsSnapshot = isSnapshot != 0
	t, err := time.Parse(time.RFC3339Nano, committedAt)
	if err != nil {
		return Commit{}, fmt.Errorf("persistence: parse committed_at: %w", err)
	}
	c.CommittedAt = t
	return c, nil
}

func scanCommitRow(row *sql.Row) (Commit, error) {
	var (
		c                  Commit
		parentHash, author sql.NullString
		committedAt        string
		isSnapshot         int
	)
	if err := row.Scan(&c.ID, &c.Hash, &parentHash, &c.Message, &author, &committedAt, &isSnapshot); err != nil {
		return Commit{}, err
	}
	c.ParentHash = parentHash.String
	c.Author = author.String
	c.IsSnapshot = isSnapshot != 0
	t, err := time.Parse(time.RFC3339Nano, committedAt)
	if err != nil {
		return Commit{}, fmt.Errorf("persistence: parse committed_at: %w", err)
	}
	c.CommittedAt = t
	return c, nil
}

// ArchetypeAt resolves a named archetype's definition as of commitHash
// (spec §4.J's archetype_at(type, name, commit)): seed from the nearest
// snapshot at or before commitHash, then replay changesets strictly after
// that snapshot up to and including commitHash.
func (s *Store) ArchetypeAt(ctx context.Context, kind ArchetypeKind, name, commitHash string) ([]byte, error) {
	target, _, err := s.Commit(ctx, commitHash)
	if err != nil {
		return nil, err
	}

	snapshotCommit, def, err := s.nearestSnapshotAtOrBefore(ctx, kind, name, target.CommittedAt)
	if err != nil {
		return nil, err
	}
	current := def

	changesets, err := s.changesetsForArchetypeBetween(ctx, kind, name, snapshotCommit, target.CommittedAt)
	if err != nil {
		return nil, err
	}
	for _, cs := range changesets {
		switch cs.Operation {
		case OpCreate, OpUpdate:
			current = cs.NewDefinition
		case OpDelete:
			current = nil
		}
	}

	return current, nil
}

// nearestSnapshotAtOrBefore returns the committed_at of the snapshot used
// as the replay seed (zero time if none exists) and the seeded definition,
// or nil if the archetype didn't exist as of that snapshot.
func (s *Store) nearestSnapshotAtOrBefore(ctx context.Context, kind ArchetypeKind, name string, cutoff time.Time) (time.Time, []byte, error) {
	// Join snapshot_entries -> commits to find the most recent snapshot
	// commit at or before cutoff that has an entry for (kind, name). No
	// column names collide between the two tables, so this doesn't need
	// table-qualified identifiers.
	rawQuery, _, buildErr := s.goqu.From(s.tableSnapshotEntries).
		Select(goqu.I("definition"), goqu.I("committed_at")).
		Join(
			s.tableCommits,
			goqu.On(goqu.Ex{"id": goqu.I("commit_id")}),
		).
		Where(
			goqu.I("archetype_type").Eq(string(kind)),
			goqu.I("archetype_name").Eq(name),
			goqu.I("committed_at").Lte(cutoff.Format(time.RFC3339Nano)),
		).
		Order(goqu.I("committed_at").Desc()).
		Limit(1).
		ToSQL()
	if buildErr != nil {
		return time.Time{}, nil, fmt.Errorf("persistence: build snapshot lookup: %w", buildErr)
	}

	var (
		def         string
		committedAt string
	)
	err := s.db.QueryRowContext(ctx, rawQuery).Scan(&def, &committedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil, nil
	}
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("persistence: snapshot lookup: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, committedAt)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("persistence: parse snapshot committed_at: %w", err)
	}
	return t, []byte(def), nil
}

func (s *Store) changesetsForArchetypeBetween(ctx context.Context, kind ArchetypeKind, name string, after, throughOrEqual time.Time) ([]Changeset, error) {
	query, _, err := s.goqu.From(s.tableChangesets).
		Select(
			goqu.I("operation"),
			goqu.I("new_definition"),
		).
		Join(
			s.tableCommits,
			goqu.On(goqu.Ex{"id": goqu.I("commit_id")}),
		).
		Where(
			goqu.I("archetype_type").Eq(string(kind)),
			goqu.I("archetype_name").Eq(name),
			goqu.I("committed_at").Gt(after.Format(time.RFC3339Nano)),
			goqu.I("committed_at").Lte(throughOrEqual.Format(time.RFC3339Nano)),
		).
		Order(goqu.I("committed_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("persistence: build replay query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("persistence: replay: %w", err)
	}
	defer rows.Close()

	var out []Changeset
	for rows.Next() {
		var op string
		var newDef sql.NullString
		if err := rows.Scan(&op, &newDef); err != nil {
			return nil, fmt.Errorf("persistence: scan replay row: %w", err)
		}
		cs := Changeset{Operation: Operation(op)}
		if newDef.Valid {
			cs.NewDefinition = []byte(newDef.String)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// Tag creates or moves a tag to point at hash (spec §4.J's tag(name, hash, message?)).
func (s *Store) Tag(ctx context.Context, name, hash, message string) (*Tag, error) {
	commit, _, err := s.Commit(ctx, hash)
	if err != nil {
		return nil, err
	}

	exists, err := s.tagExists(ctx, name)
	if err != nil {
		return nil, err
	}

	rec := goqu.Record{"commit_id": commit.ID, "message": nullIfEmpty(message)}
	var query string
	if exists {
		query, _, err = s.goqu.Update(s.tableTags).Set(rec).Where(goqu.I("name").Eq(name)).ToSQL()
	} else {
		rec["name"] = name
		query, _, err = s.goqu.Insert(s.tableTags).Rows(rec).ToSQL()
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: build tag upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("persistence: tag %q: %w", name, err)
	}

	return &Tag{Name: name, CommitID: commit.ID, Hash: hash, Message: message}, nil
}

func (s *Store) tagExists(ctx context.Context, name string) (bool, error) {
	query, _, err := s.goqu.From(s.tableTags).Select(goqu.COUNT("*")).Where(goqu.I("name").Eq(name)).ToSQL()
	if err != nil {
		return false, fmt.Errorf("persistence: build tag exists query: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return false, fmt.Errorf("persistence: tag exists: %w", err)
	}
	return count > 0, nil
}

// Tags lists all tags (spec §4.J's tags()). tags.message and commits.message
// both exist, so the select list qualifies that one column explicitly.
func (s *Store) Tags(ctx context.Context) ([]Tag, error) {
	query, _, err := s.goqu.From(s.tableTags).
		Select(
			goqu.I("name"),
			goqu.I("commit_id"),
			goqu.I(s.tagsTableName+".message"),
			goqu.I("commit_hash"),
		).
		Join(s.tableCommits, goqu.On(goqu.Ex{"id": goqu.I("commit_id")})).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("persistence: build tags query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("persistence: tags: %w", err)
	}
	defer rows.Close()

	var out []Tag
	for rows.Next() {
		var t Tag
		var msg sql.NullString
		if err := rows.Scan(&t.Name, &t.CommitID, &msg, &t.Hash); err != nil {
			return nil, fmt.Errorf("persistence: scan tag: %w", err)
		}
		t.Message = msg.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetArchetype returns the current materialized row for (kind, name).
func (s *Store) GetArchetype(ctx context.Context, kind ArchetypeKind, name string) (*Archetype, error) {
	query, _, err := s.goqu.From(s.tableArchetypes).
		Select("id", "type", "name", "definition", "version", "created_at", "updated_at", "deleted_at").
		Where(goqu.I("type").Eq(string(kind)), goqu.I("name").Eq(name)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("persistence: build archetype query: %w", err)
	}

	a, err := scanArchetypeRows(s.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &apperr.NotFound{Kind: string(kind), ID: name}
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListArchetypes returns every live (non-deleted) archetype of kind.
func (s *Store) ListArchetypes(ctx context.Context, kind ArchetypeKind) ([]Archetype, error) {
	query, _, err := s.goqu.From(s.tableArchetypes).
		Select("id", "type", "name", "definition", "version", "created_at", "updated_at", "deleted_at").
		Where(goqu.I("type").Eq(string(kind)), goqu.I("deleted_at").IsNull()).
		Order(goqu.I("name").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("persistence: build list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("persistence: list archetypes: %w", err)
	}
	defer rows.Close()

	var out []Archetype
	for rows.Next() {
		a, err := scanArchetypeRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanArchetypeRows(row scannable) (*Archetype, error) {
	var (
		a                     Archetype
		typ                   string
		def                   string
		createdAt, updatedAt  string
		deletedAt             sql.NullString
	)
	if err := row.Scan(&a.ID, &typ, &a.Name, &def, &a.Version, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}
	a.Type = ArchetypeKind(typ)
	a.Definition = []byte(def)

	ct, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse created_at: %w", err)
	}
	a.CreatedAt = ct

	ut, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse updated_at: %w", err)
	}
	a.UpdatedAt = ut

	if deletedAt.Valid {
		dt, err := time.Parse(time.RFC3339Nano, deletedAt.String)
		if err != nil {
			return nil, fmt.Errorf("persistence: parse deleted_at: %w", err)
		}
		a.DeletedAt = &dt
	}

	return &a, nil
}
