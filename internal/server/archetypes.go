package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/periplon/metis/internal/apperr"
	"github.com/periplon/metis/internal/persistence"
)

// archetypeResource binds one archetype kind to its Management HTTP API
// path segment, spec §6: "CRUD /{resources, resource-templates, tools,
// prompts, workflows, agents, orchestrations, schemas, data-lakes}".
type archetypeResource struct {
	kind    persistence.ArchetypeKind
	segment string
}

var archetypeResources = []archetypeResource{
	{persistence.KindResource, "resources"},
	{persistence.KindResourceTemplate, "resource-templates"},
	{persistence.KindTool, "tools"},
	{persistence.KindPrompt, "prompts"},
	{persistence.KindWorkflow, "workflows"},
	{persistence.KindAgent, "agents"},
	{persistence.KindOrchestration, "orchestrations"},
	{persistence.KindSchema, "schemas"},
	{persistence.KindDataLake, "data-lakes"},
}

type archetypeView struct {
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	Definition json.RawMessage `json:"definition"`
	Version    int64           `json:"version"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

func toArchetypeView(a persistence.Archetype) archetypeView {
	return archetypeView{
		Name:       a.Name,
		Type:       string(a.Type),
		Definition: json.RawMessage(a.Definition),
		Version:    a.Version,
		CreatedAt:  a.CreatedAt.Format(httpTimeLayout),
		UpdatedAt:  a.UpdatedAt.Format(httpTimeLayout),
	}
}

const httpTimeLayout = "2006-01-02T15:04:05.999999999Z07:00"

// actorFromRequest resolves the commit author for write-through API
// calls: the X-Actor request header if present, else the generic "api"
// fallback so every commit is still attributable.
func actorFromRequest(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "api"
}

// writeArchetypeError maps the persistence package's typed errors onto
// the HTTP status codes spec §6 calls for ("Optimistic concurrency via
// expected_version; 409 Conflict on mismatch").
func writeArchetypeError(w http.ResponseWriter, err error) {
	switch e := err.(type) {
	case *apperr.NotFound:
		httpResponse(w, e.Error(), http.StatusNotFound)
	case *apperr.CommitNotFound:
		httpResponse(w, e.Error(), http.StatusNotFound)
	case *apperr.TagNotFound:
		httpResponse(w, e.Error(), http.StatusNotFound)
	case *apperr.Duplicate:
		httpResponse(w, e.Error(), http.StatusConflict)
	case *apperr.VersionConflict:
		httpResponse(w, e.Error(), http.StatusConflict)
	case *apperr.TagExists:
		httpResponse(w, e.Error(), http.StatusConflict)
	case *apperr.Validation:
		httpResponse(w, e.Error(), http.StatusBadRequest)
	default:
		httpResponse(w, err.Error(), http.StatusInternalServerError)
	}
}

// maybeSyncRegistry re-derives the Protocol Dispatcher's handler
// collections after a write to a kind the registry package consumes
// (tool, resource, prompt); other kinds are no-ops here.
func (s *Server) maybeSyncRegistry(ctx context.Context, kind persistence.ArchetypeKind) {
	switch kind {
	case persistence.KindTool, persistence.KindResource, persistence.KindPrompt:
	default:
		return
	}
	if err := s.syncRegistry(ctx); err != nil {
		slog.Error("registry sync failed after archetype write", "kind", kind, "error", err)
	}
}

func (s *Server) listArchetypesAPI(kind persistence.ArchetypeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.persist == nil {
			httpResponse(w, "persistence not configured", http.StatusServiceUnavailable)
			return
		}
		items, err := s.persist.ListArchetypes(r.Context(), kind)
		if err != nil {
			writeArchetypeError(w, err)
			return
		}
		views := make([]archetypeView, 0, len(items))
		for _, a := range items {
			views = append(views, toArchetypeView(a))
		}
		httpResponseJSON(w, map[string]any{"items": views}, http.StatusOK)
	}
}

func (s *Server) getArchetypeAPI(kind persistence.ArchetypeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.persist == nil {
			httpResponse(w, "persistence not configured", http.StatusServiceUnavailable)
			return
		}
		name := r.PathValue("name")
		a, err := s.persist.GetArchetype(r.Context(), kind, name)
		if err != nil {
			writeArchetypeError(w, err)
			return
		}
		httpResponseJSON(w, toArchetypeView(*a), http.StatusOK)
	}
}

type archetypeCreateRequest struct {
	Name       string          `json:"name"`
	Definition json.RawMessage `json:"definition"`
}

func (s *Server) createArchetypeAPI(kind persistence.ArchetypeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.persist == nil {
			httpResponse(w, "persistence not configured", http.StatusServiceUnavailable)
			return
		}
		var req archetypeCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpResponse(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			httpResponse(w, "name is required", http.StatusBadRequest)
			return
		}

		_, err := s.persist.CommitChangeset(r.Context(), "create "+string(kind)+" "+req.Name, actorFromRequest(r),
			[]persistence.Changeset{{
				Operation:     persistence.OpCreate,
				ArchetypeType: kind,
				ArchetypeName: req.Name,
				NewDefinition: req.Definition,
			}}, nil)
		if err != nil {
			writeArchetypeError(w, err)
			return
		}

		a, err := s.persist.GetArchetype(r.Context(), kind, req.Name)
		if err != nil {
			writeArchetypeError(w, err)
			return
		}
		s.maybeSyncRegistry(r.Context(), kind)
		httpResponseJSON(w, toArchetypeView(*a), http.StatusCreated)
	}
}

type archetypeUpdateRequest struct {
	Definition      json.RawMessage `json:"definition"`
	ExpectedVersion *int64          `json:"expected_version,omitempty"`
}

func (s *Server) updateArchetypeAPI(kind persistence.ArchetypeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.persist == nil {
			httpResponse(w, "persistence not configured", http.StatusServiceUnavailable)
			return
		}
		name := r.PathValue("name")

		var req archetypeUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpResponse(w, "invalid request body", http.StatusBadRequest)
			return
		}

		current, err := s.persist.GetArchetype(r.Context(), kind, name)
		if err != nil {
			writeArchetypeError(w, err)
			return
		}

		expected := current.Version
		if req.ExpectedVersion != nil {
			expected = *req.ExpectedVersion
		}

		_, err = s.persist.CommitChangeset(r.Context(), "update "+string(kind)+" "+name, actorFromRequest(r),
			[]persistence.Changeset{{
				Operation:     persistence.OpUpdate,
				ArchetypeType: kind,
				ArchetypeName: name,
				OldDefinition: current.Definition,
				NewDefinition: req.Definition,
			}}, map[string]int64{name: expected})
		if err != nil {
			writeArchetypeError(w, err)
			return
		}

		a, err := s.persist.GetArchetype(r.Context(), kind, name)
		if err != nil {
			writeArchetypeError(w, err)
			return
		}
		s.maybeSyncRegistry(r.Context(), kind)
		httpResponseJSON(w, toArchetypeView(*a), http.StatusOK)
	}
}

func (s *Server) deleteArchetypeAPI(kind persistence.ArchetypeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.persist == nil {
			httpResponse(w, "persistence not configured", http.StatusServiceUnavailable)
			return
		}
		name := r.PathValue("name")

		current, err := s.persist.GetArchetype(r.Context(), kind, name)
		if err != nil {
			writeArchetypeError(w, err)
			return
		}

		expected := current.Version
		if v := r.URL.Query().Get("expected_version"); v != "" {
			parsed, parseErr := strconv.ParseInt(v, 10, 64)
			if parseErr != nil {
				httpResponse(w, "invalid expected_version", http.StatusBadRequest)
				return
			}
			expected = parsed
		}

		_, err = s.persist.CommitChangeset(r.Context(), "delete "+string(kind)+" "+name, actorFromRequest(r),
			[]persistence.Changeset{{
				Operation:     persistence.OpDelete,
				ArchetypeType: kind,
				ArchetypeName: name,
				OldDefinition: current.Definition,
			}}, map[string]int64{name: expected})
		if err != nil {
			writeArchetypeError(w, err)
			return
		}
		s.maybeSyncRegistry(r.Context(), kind)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ─── Commit log, tags, rollback ───

func (s *Server) ListCommitsAPI(w http.ResponseWriter, r *http.Request) {
	if s.persist == nil {
		httpResponse(w, "persistence not configured", http.StatusServiceUnavailable)
		return
	}
	limit, offset := 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	commits, err := s.persist.Commits(r.Context(), limit, offset)
	if err != nil {
		writeArchetypeError(w, err)
		return
	}
	httpResponseJSON(w, map[string]any{"items": commits}, http.StatusOK)
}

func (s *Server) GetCommitAPI(w http.ResponseWriter, r *http.Request) {
	if s.persist == nil {
		httpResponse(w, "persistence not configured", http.StatusServiceUnavailable)
		return
	}
	hash := r.PathValue("name")
	commit, changesets, err := s.persist.Commit(r.Context(), hash)
	if err != nil {
		writeArchetypeError(w, err)
		return
	}
	httpResponseJSON(w, map[string]any{"commit": commit, "changesets": changesets}, http.StatusOK)
}

func (s *Server) ListTagsAPI(w http.ResponseWriter, r *http.Request) {
	if s.persist == nil {
		httpResponse(w, "persistence not configured", http.StatusServiceUnavailable)
		return
	}
	tags, err := s.persist.Tags(r.Context())
	if err != nil {
		writeArchetypeError(w, err)
		return
	}
	httpResponseJSON(w, map[string]any{"items": tags}, http.StatusOK)
}

type tagRequest struct {
	Name    string `json:"name"`
	Hash    string `json:"hash"`
	Message string `json:"message,omitempty"`
}

func (s *Server) CreateTagAPI(w http.ResponseWriter, r *http.Request) {
	if s.persist == nil {
		httpResponse(w, "persistence not configured", http.StatusServiceUnavailable)
		return
	}
	var req tagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Hash == "" {
		httpResponse(w, "name and hash are required", http.StatusBadRequest)
		return
	}
	tag, err := s.persist.Tag(r.Context(), req.Name, req.Hash, req.Message)
	if err != nil {
		writeArchetypeError(w, err)
		return
	}
	httpResponseJSON(w, tag, http.StatusOK)
}

type rollbackRequest struct {
	Hash    string `json:"hash"`
	Message string `json:"message,omitempty"`
}

func (s *Server) RollbackAPI(w http.ResponseWriter, r *http.Request) {
	if s.persist == nil {
		httpResponse(w, "persistence not configured", http.StatusServiceUnavailable)
		return
	}
	var req rollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Hash == "" {
		httpResponse(w, "hash is required", http.StatusBadRequest)
		return
	}
	message := req.Message
	if message == "" {
		message = "rollback to " + req.Hash
	}
	commit, err := s.persist.Rollback(r.Context(), req.Hash, message, actorFromRequest(r))
	if err != nil {
		writeArchetypeError(w, err)
		return
	}
	if commit == nil {
		httpResponse(w, "already at target state", http.StatusOK)
		return
	}
	httpResponseJSON(w, commit, http.StatusOK)
}
