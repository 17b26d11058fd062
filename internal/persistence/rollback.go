package persistence

import (
	"context"
	"errors"

	"github.com/periplon/metis/internal/apperr"
)

// Rollback implements spec §4.J's rollback-to-commit semantics: compute the
// live archetype set as of toHash (via ArchetypeAt per archetype), diff it
// against the current live set, and append a new commit whose changeset
// deltas restore each differing archetype to the replayed state. Rollback
// never rewrites history — it only ever appends a new commit.
func (s *Store) Rollback(ctx context.Context, toHash, message, author string) (*Commit, error) {
	if _, _, err := s.Commit(ctx, toHash); err != nil {
		return nil, err
	}

	var targetKinds = []ArchetypeKind{
		KindResource, KindResourceTemplate, KindTool, KindPrompt,
		KindWorkflow, KindAgent, KindOrchestration, KindSchema, KindDataLake,
	}

	// names seen either in the current live set or in the target snapshot,
	// per kind, so deletions (present now, gone at toHash) are also
	// captured as restore deltas.
	seen := map[ArchetypeKind]map[string]struct{}{}
	for _, kind := range targetKinds {
		seen[kind] = map[string]struct{}{}

		current, err := s.ListArchetypes(ctx, kind)
		if err != nil {
			return nil, err
		}
		for _, a := range current {
			seen[kind][a.Name] = struct{}{}
		}
	}

	var deltas []Changeset
	expectedVersions := map[string]int64{}

	for _, kind := range targetKinds {
		for name := range seen[kind] {
			targetDef, err := s.ArchetypeAt(ctx, kind, name, toHash)
			if err != nil {
				return nil, err
			}

			currentArchetype, err := s.GetArchetype(ctx, kind, name)
			var notFound *apperr.NotFound
			if err != nil && !errors.As(err, &notFound) {
				return nil, err
			}
			currentExists := err == nil
			var currentDef []byte
			if currentExists {
				currentDef = currentArchetype.Definition
				expectedVersions[name] = currentArchetype.Version
			}

			switch {
			case targetDef == nil && currentExists:
				// existed now, gone at toHash: restore as delete
				deltas = append(deltas, Changeset{
					Operation: OpDelete, ArchetypeType: kind, ArchetypeName: name,
					OldDefinition: currentDef,
				})
			case targetDef != nil && !currentExists:
				deltas = append(deltas, Changeset{
					Operation: OpCreate, ArchetypeType: kind, ArchetypeName: name,
					NewDefinition: targetDef,
				})
			case targetDef != nil && currentExists && string(targetDef) != string(currentDef):
				deltas = append(deltas, Changeset{
					Operation: OpUpdate, ArchetypeType: kind, ArchetypeName: name,
					OldDefinition: currentDef, NewDefinition: targetDef,
				})
			}
		}
	}

	if len(deltas) == 0 {
		// Nothing differs. Every commit needs at least one changeset, so no
		// commit is appended; (nil, nil) reports the target state as
		// already current.
		return nil, nil
	}

	return s.CommitChangeset(ctx, message, author, deltas, expectedVersions)
}
