package persistence

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/periplon/metis/internal/apperr"
	"github.com/periplon/metis/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "persistence.db") + "?_pragma=busy_timeout(5000)"
	s, err := Open(context.Background(), &config.StoreSQLite{Datasource: dsn})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func def(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestCommitChangesetCreatesArchetypeAndAdvancesHead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	head, err := s.Head(ctx)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head != "" {
		t.Fatalf("expected empty head on fresh store, got %q", head)
	}

	c, err := s.CommitChangeset(ctx, "create widget tool", "tester", []Changeset{
		{Operation: OpCreate, ArchetypeType: KindTool, ArchetypeName: "widget", NewDefinition: def(t, map[string]any{"v": 1})},
	}, nil)
	if err != nil {
		t.Fatalf("CommitChangeset: %v", err)
	}
	if c.ParentHash != "" {
		t.Fatalf("first commit should have empty parent hash, got %q", c.ParentHash)
	}

	head, err = s.Head(ctx)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head != c.Hash {
		t.Fatalf("head = %q, want %q", head, c.Hash)
	}

	a, err := s.GetArchetype(ctx, KindTool, "widget")
	if err != nil {
		t.Fatalf("GetArchetype: %v", err)
	}
	if a.Version != 1 {
		t.Fatalf("version = %d, want 1", a.Version)
	}
}

func TestCommitChangesetUpdateBumpsVersionAndChainsParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c1, err := s.CommitChangeset(ctx, "create", "tester", []Changeset{
		{Operation: OpCreate, ArchetypeType: KindTool, ArchetypeName: "widget", NewDefinition: def(t, map[string]any{"v": 1})},
	}, nil)
	if err != nil {
		t.Fatalf("create commit: %v", err)
	}

	c2, err := s.CommitChangeset(ctx, "update", "tester", []Changeset{
		{Operation: OpUpdate, ArchetypeType: KindTool, ArchetypeName: "widget", NewDefinition: def(t, map[string]any{"v": 2})},
	}, map[string]int64{"widget": 1})
	if err != nil {
		t.Fatalf("update commit: %v", err)
	}
	if c2.ParentHash != c1.Hash {
		t.Fatalf("parent hash = %q, want %q", c2.ParentHash, c1.Hash)
	}

	a, err := s.GetArchetype(ctx, KindTool, "widget")
	if err != nil {
		t.Fatalf("GetArchetype: %v", err)
	}
	if a.Version != 2 {
		t.Fatalf("version = %d, want 2", a.Version)
	}
}

func TestCommitChangesetVersionConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CommitChangeset(ctx, "create", "tester", []Changeset{
		{Operation: OpCreate, ArchetypeType: KindTool, ArchetypeName: "widget", NewDefinition: def(t, map[string]any{"v": 1})},
	}, nil); err != nil {
		t.Fatalf("create commit: %v", err)
	}

	_, err := s.CommitChangeset(ctx, "update", "tester", []Changeset{
		{Operation: OpUpdate, ArchetypeType: KindTool, ArchetypeName: "widget", NewDefinition: def(t, map[string]any{"v": 2})},
	}, map[string]int64{"widget": 99})
	var conflict *apperr.VersionConflict
	if err == nil {
		t.Fatal("expected VersionConflict error")
	}
	if !asVersionConflict(err, &conflict) {
		t.Fatalf("expected VersionConflict, got %T: %v", err, err)
	}
}

func asVersionConflict(err error, target **apperr.VersionConflict) bool {
	vc, ok := err.(*apperr.VersionConflict)
	if ok {
		*target = vc
	}
	return ok
}

func TestArchetypeAtReplaysHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c1, err := s.CommitChangeset(ctx, "create", "tester", []Changeset{
		{Operation: OpCreate, ArchetypeType: KindPrompt, ArchetypeName: "greeting", NewDefinition: def(t, map[string]any{"text": "hello"})},
	}, nil)
	if err != nil {
		t.Fatalf("create commit: %v", err)
	}

	if _, err := s.CommitChangeset(ctx, "update", "tester", []Changeset{
		{Operation: OpUpdate, ArchetypeType: KindPrompt, ArchetypeName: "greeting", NewDefinition: def(t, map[string]any{"text": "hi"})},
	}, map[string]int64{"greeting": 1}); err != nil {
		t.Fatalf("update commit: %v", err)
	}

	defAtC1, err := s.ArchetypeAt(ctx, KindPrompt, "greeting", c1.Hash)
	if err != nil {
		t.Fatalf("ArchetypeAt: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(defAtC1, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["text"] != "hello" {
		t.Fatalf("definition at c1 = %v, want text=hello", decoded)
	}

	current, err := s.GetArchetype(ctx, KindPrompt, "greeting")
	if err != nil {
		t.Fatalf("GetArchetype: %v", err)
	}
	var currentDecoded map[string]any
	if err := json.Unmarshal(current.Definition, &currentDecoded); err != nil {
		t.Fatalf("unmarshal current: %v", err)
	}
	if currentDecoded["text"] != "hi" {
		t.Fatalf("current definition = %v, want text=hi", currentDecoded)
	}
}

func TestRollbackRestoresPriorState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c1, err := s.CommitChangeset(ctx, "create", "tester", []Changeset{
		{Operation: OpCreate, ArchetypeType: KindAgent, ArchetypeName: "assistant", NewDefinition: def(t, map[string]any{"model": "a"})},
	}, nil)
	if err != nil {
		t.Fatalf("create commit: %v", err)
	}

	if _, err := s.CommitChangeset(ctx, "update", "tester", []Changeset{
		{Operation: OpUpdate, ArchetypeType: KindAgent, ArchetypeName: "assistant", NewDefinition: def(t, map[string]any{"model": "b"})},
	}, map[string]int64{"assistant": 1}); err != nil {
		t.Fatalf("update commit: %v", err)
	}

	rollbackCommit, err := s.Rollback(ctx, c1.Hash, "revert to a", "tester")
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if rollbackCommit == nil {
		t.Fatal("expected a non-nil rollback commit")
	}

	restored, err := s.GetArchetype(ctx, KindAgent, "assistant")
	if err != nil {
		t.Fatalf("GetArchetype: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(restored.Definition, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["model"] != "a" {
		t.Fatalf("restored model = %v, want a", decoded)
	}

	// Rollback never rewrites history: both the original two commits and
	// the new restore commit must all still be present.
	commits, err := s.Commits(ctx, 50, 0)
	if err != nil {
		t.Fatalf("Commits: %v", err)
	}
	if len(commits) != 3 {
		t.Fatalf("len(commits) = %d, want 3", len(commits))
	}
}

func TestTagAndTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CommitChangeset(ctx, "create", "tester", []Changeset{
		{Operation: OpCreate, ArchetypeType: KindTool, ArchetypeName: "widget", NewDefinition: def(t, map[string]any{"v": 1})},
	}, nil)
	if err != nil {
		t.Fatalf("create commit: %v", err)
	}

	if _, err := s.Tag(ctx, "v1", c.Hash, "first release"); err != nil {
		t.Fatalf("Tag: %v", err)
	}

	tags, err := s.Tags(ctx)
	if err != nil {
		t.Fatalf("Tags: %v", err)
	}
	if len(tags) != 1 || tags[0].Name != "v1" || tags[0].Hash != c.Hash {
		t.Fatalf("tags = %+v, want one tag v1 -> %s", tags, c.Hash)
	}
}

func TestDataLakeCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dl := s.DataLake()

	created, err := dl.Create(ctx, "events", "click", map[string]any{"user": "alice", "count": float64(1)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("expected a generated id")
	}

	got, err := dl.ReadByID(ctx, "events", id)
	if err != nil {
		t.Fatalf("ReadByID: %v", err)
	}
	data, _ := got["data"].(map[string]any)
	if data["user"] != "alice" {
		t.Fatalf("data = %v, want user=alice", data)
	}

	updated, err := dl.Update(ctx, "events", id, map[string]any{"user": "alice", "count": float64(2)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	updatedData, _ := updated["data"].(map[string]any)
	if updatedData["count"] != float64(2) {
		t.Fatalf("updated count = %v, want 2", updatedData["count"])
	}

	filtered, err := dl.ReadFilter(ctx, "events", map[string]any{"user": "alice"})
	if err != nil {
		t.Fatalf("ReadFilter: %v", err)
	}
	if len(filtered) != 1 {
		t.Fatalf("len(filtered) = %d, want 1", len(filtered))
	}

	if err := dl.Delete(ctx, "events", id); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := dl.ReadByID(ctx, "events", id); err == nil {
		t.Fatal("expected NotFound after delete")
	}
}
