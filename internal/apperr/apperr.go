// Package apperr defines the typed error taxonomy shared across Metis'
// components. Errors are plain Go values satisfying error and Unwrap,
// not a class hierarchy — callers type-switch or errors.As as needed.
package apperr

import "fmt"

// Validation reports malformed input or a schema mismatch.
type Validation struct {
	Field  string
	Reason string
}

func (e *Validation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NotFound reports a missing domain object.
type NotFound struct {
	Kind string
	ID   string
}

func (e *NotFound) Error() string { return fmt.Sprintf("%s %q: not found", e.Kind, e.ID) }

// Duplicate reports a uniqueness-constraint violation.
type Duplicate struct {
	Kind string
	ID   string
}

func (e *Duplicate) Error() string { return fmt.Sprintf("%s %q: already exists", e.Kind, e.ID) }

// VersionConflict reports an optimistic-locking mismatch.
type VersionConflict struct {
	Kind     string
	ID       string
	Expected int64
	Actual   int64
}

func (e *VersionConflict) Error() string {
	return fmt.Sprintf("%s %q: version conflict (expected %d, have %d)", e.Kind, e.ID, e.Expected, e.Actual)
}

// TagExists reports an attempt to create a tag name that is already taken.
type TagExists struct{ Name string }

func (e *TagExists) Error() string { return fmt.Sprintf("tag %q: already exists", e.Name) }

// TagNotFound reports a reference to an unknown tag.
type TagNotFound struct{ Name string }

func (e *TagNotFound) Error() string { return fmt.Sprintf("tag %q: not found", e.Name) }

// CommitNotFound reports a reference to an unknown commit hash.
type CommitNotFound struct{ Hash string }

func (e *CommitNotFound) Error() string { return fmt.Sprintf("commit %q: not found", e.Hash) }

// Provider errors wrap LLM backend failures.
type ProviderAuthentication struct{ Provider string }

func (e *ProviderAuthentication) Error() string {
	return fmt.Sprintf("provider %s: authentication failed", e.Provider)
}

type ProviderRateLimited struct {
	Provider     string
	RetryAfterMs int64
}

func (e *ProviderRateLimited) Error() string {
	return fmt.Sprintf("provider %s: rate limited (retry after %dms)", e.Provider, e.RetryAfterMs)
}

type ProviderNetwork struct {
	Provider string
	Err      error
}

func (e *ProviderNetwork) Error() string { return fmt.Sprintf("provider %s: network error: %v", e.Provider, e.Err) }
func (e *ProviderNetwork) Unwrap() error { return e.Err }

type ProviderTimeout struct{ Provider string }

func (e *ProviderTimeout) Error() string { return fmt.Sprintf("provider %s: timeout", e.Provider) }

type ProviderAPIError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderAPIError) Error() string {
	return fmt.Sprintf("provider %s: api error (status %d): %s", e.Provider, e.Status, e.Message)
}

type ProviderContentFiltered struct{ Provider string }

func (e *ProviderContentFiltered) Error() string {
	return fmt.Sprintf("provider %s: content filtered", e.Provider)
}

type ProviderTokenLimitExceeded struct {
	Provider string
	Limit    int
}

func (e *ProviderTokenLimitExceeded) Error() string {
	return fmt.Sprintf("provider %s: token limit exceeded (limit %d)", e.Provider, e.Limit)
}

// IsRetryable reports whether err should be retried locally per spec §7:
// only RateLimited and transient Network errors qualify.
func IsRetryable(err error) bool {
	switch err.(type) {
	case *ProviderRateLimited, *ProviderNetwork:
		return true
	default:
		return false
	}
}

// Execution errors surface agent-loop termination reasons.
type MaxIterations struct{ Limit int }

func (e *MaxIterations) Error() string { return fmt.Sprintf("execution: max iterations (%d) reached", e.Limit) }

type BudgetExceeded struct {
	Used  int64
	Limit int64
}

func (e *BudgetExceeded) Error() string {
	return fmt.Sprintf("execution: budget exceeded (used %d of %d)", e.Used, e.Limit)
}

type Cancelled struct{}

func (e *Cancelled) Error() string { return "execution: cancelled" }

type ToolExecution struct {
	Name   string
	Reason string
}

func (e *ToolExecution) Error() string { return fmt.Sprintf("execution: tool %q failed: %s", e.Name, e.Reason) }

// Sandbox errors surface Mock Strategy Engine scripting/pattern failures.
type ScriptTimeout struct{ BudgetMs int }

func (e *ScriptTimeout) Error() string {
	return fmt.Sprintf("sandbox: script exceeded %dms wall-clock budget", e.BudgetMs)
}

type ScriptError struct{ Message string }

func (e *ScriptError) Error() string { return fmt.Sprintf("sandbox: script error: %s", e.Message) }

type PatternTooComplex struct{ Pattern string }

func (e *PatternTooComplex) Error() string {
	return fmt.Sprintf("sandbox: pattern too complex: %s", e.Pattern)
}

type PatternInvalid struct {
	Pattern string
	Reason  string
}

func (e *PatternInvalid) Error() string {
	return fmt.Sprintf("sandbox: pattern %q invalid: %s", e.Pattern, e.Reason)
}

// MockOutputInvalid reports a generator that produced a value violating
// its declared output schema.
type MockOutputInvalid struct {
	Strategy string
	Reason   string
}

func (e *MockOutputInvalid) Error() string {
	return fmt.Sprintf("mock strategy %q: invalid output: %s", e.Strategy, e.Reason)
}

// StateTypeMismatch reports an increment attempted on a non-integer value.
type StateTypeMismatch struct{ Key string }

func (e *StateTypeMismatch) Error() string {
	return fmt.Sprintf("state %q: value is not an integer", e.Key)
}

// Persistence errors.
type PersistenceConnection struct{ Err error }

func (e *PersistenceConnection) Error() string { return fmt.Sprintf("persistence: connection: %v", e.Err) }
func (e *PersistenceConnection) Unwrap() error  { return e.Err }

type PersistenceMigration struct{ Err error }

func (e *PersistenceMigration) Error() string { return fmt.Sprintf("persistence: migration: %v", e.Err) }
func (e *PersistenceMigration) Unwrap() error  { return e.Err }

type PersistenceTransaction struct{ Err error }

func (e *PersistenceTransaction) Error() string { return fmt.Sprintf("persistence: transaction: %v", e.Err) }
func (e *PersistenceTransaction) Unwrap() error  { return e.Err }

type PersistenceSerialization struct{ Err error }

func (e *PersistenceSerialization) Error() string { return fmt.Sprintf("persistence: serialization: %v", e.Err) }
func (e *PersistenceSerialization) Unwrap() error  { return e.Err }

// Decryption errors for secret values (spec §6).
type Decryption struct{ Reason string }

func (e *Decryption) Error() string { return fmt.Sprintf("decryption failed: %s", e.Reason) }

type NoPassphrase struct{}

func (e *NoPassphrase) Error() string { return "decryption: no passphrase configured" }

type InvalidFormat struct{ Reason string }

func (e *InvalidFormat) Error() string { return fmt.Sprintf("invalid format: %s", e.Reason) }

// SessionNotFound should, per spec §4.H's auto-create invariant, never be
// returned by the Session Manager — it is defined here only so internal
// plumbing can assert that invariant in tests.
type SessionNotFound struct{ ID string }

func (e *SessionNotFound) Error() string { return fmt.Sprintf("session %q: not found", e.ID) }

// InvalidEventId reports a resume() call referencing an event older than
// the session's ring buffer retains.
type InvalidEventId struct {
	SessionID string
	EventID   int64
}

func (e *InvalidEventId) Error() string {
	return fmt.Sprintf("session %q: event id %d not in replay buffer", e.SessionID, e.EventID)
}
