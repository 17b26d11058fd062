package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
)

// SQLStore persists sessions in a single table via goqu, grounded on
// internal/store/sqlite3/sqlite3.go's ToSQL()+QueryContext/ExecContext
// pattern. The table holds one row per session with the full message
// list serialized as JSON, rather than one row per message, since the
// Memory Store always reads/writes a session's history as a unit.
type SQLStore struct {
	db    *sql.DB
	goqu  *goqu.Database
	table string
}

// NewSQLStore wraps db. Callers must have already run the
// `memory_sessions(session_id TEXT PRIMARY KEY, agent_name TEXT,
// messages TEXT NOT NULL, updated_at INTEGER NOT NULL)` migration (see
// Persistence Core's migration set).
func NewSQLStore(db *sql.DB, dialect, table string) *SQLStore {
	if table == "" {
		table = "memory_sessions"
	}
	return &SQLStore{db: db, goqu: goqu.New(dialect, db), table: table}
}

type sessionRow struct {
	SessionID string
	AgentName sql.NullString
	Messages  string
	UpdatedAt int64
}

func (s *SQLStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	query, _, err := s.goqu.From(s.table).
		Select("session_id", "agent_name", "messages", "updated_at").
		Where(goqu.I("session_id").Eq(sessionID)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build load query: %w", err)
	}

	var row sessionRow
	err = s.db.QueryRowContext(ctx, query).Scan(&row.SessionID, &row.AgentName, &row.Messages, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return rowToSession(row)
}

func rowToSession(row sessionRow) (*Session, error) {
	var msgs []Message
	if err := json.Unmarshal([]byte(row.Messages), &msgs); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", row.SessionID, err)
	}
	return &Session{
		ID:        row.SessionID,
		AgentName: row.AgentName.String,
		Messages:  msgs,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (s *SQLStore) Save(ctx context.Context, session *Session) error {
	session.UpdatedAt = time.Now().UnixMilli()
	data, err := json.Marshal(session.Messages)
	if err != nil {
		return err
	}

	insertQuery, _, err := s.goqu.Insert(s.table).Rows(goqu.Record{
		"session_id": session.ID,
		"agent_name": session.AgentName,
		"messages":   string(data),
		"updated_at": session.UpdatedAt,
	}).ToSQL()
	if err != nil {
		return fmt.Errorf("build save query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, insertQuery); err == nil {
		return nil
	}

	updateQuery, _, err := s.goqu.Update(s.table).
		Set(goqu.Record{
			"agent_name": session.AgentName,
			"messages":   string(data),
			"updated_at": session.UpdatedAt,
		}).
		Where(goqu.I("session_id").Eq(session.ID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build update query: %w", err)
	}
	_, err = s.db.ExecContext(ctx, updateQuery)
	return err
}

func (s *SQLStore) AddMessage(ctx context.Context, sessionID string, msg Message) error {
	session, err := s.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		session = &Session{ID: sessionID}
	}
	session.Messages = append(session.Messages, msg)
	return s.Save(ctx, session)
}

func (s *SQLStore) Delete(ctx context.Context, sessionID string) error {
	query, _, err := s.goqu.Delete(s.table).Where(goqu.I("session_id").Eq(sessionID)).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete query: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLStore) List(ctx context.Context, agentName string, limit, offset int) ([]Summary, error) {
	ds := s.goqu.From(s.table).Select("session_id", "agent_name", "messages", "updated_at").
		Order(goqu.I("updated_at").Desc(), goqu.I("session_id").Asc())
	if agentName != "" {
		ds = ds.Where(goqu.I("agent_name").Eq(agentName))
	}
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	if offset > 0 {
		ds = ds.Offset(uint(offset))
	}

	query, _, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var row sessionRow
		if err := rows.Scan(&row.SessionID, &row.AgentName, &row.Messages, &row.UpdatedAt); err != nil {
			return nil, err
		}
		var msgs []Message
		_ = json.Unmarshal([]byte(row.Messages), &msgs)
		summaries = append(summaries, Summary{
			ID:           row.SessionID,
			AgentName:    row.AgentName.String,
			MessageCount: len(msgs),
			UpdatedAt:    row.UpdatedAt,
		})
	}
	return summaries, rows.Err()
}

func (s *SQLStore) GetOrCreate(ctx context.Context, sessionID, agentName string) (*Session, error) {
	session, err := s.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		session = &Session{ID: sessionID, AgentName: agentName}
		if err := s.Save(ctx, session); err != nil {
			return nil, err
		}
	}
	return session, nil
}
