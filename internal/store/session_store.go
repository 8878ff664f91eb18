package store

import (
	"database/sql"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voidlock/squire/internal/domain"
	"github.com/voidlock/squire/internal/logging"
)

// SQLiteSessionStore implements relay.SessionStore backed by SQLite, so
// session handles survive restarts and a conversation picks up where it
// left off. The busy flag is runtime state and lives only in memory: a
// restart never leaves a conversation stuck busy.
type SQLiteSessionStore struct {
	db  *DB
	log *logging.Logger

	mu      sync.Mutex
	busy    map[string]bool
	evicted map[string]bool // busy records evicted mid-turn; next Release is a no-op bump-wise

	now func() time.Time // test seam
}

// NewSessionStore creates a session store using the given database.
func NewSessionStore(db *DB, log *logging.Logger) *SQLiteSessionStore {
	return &SQLiteSessionStore{
		db:      db,
		log:     log.Sub("sessions"),
		busy:    make(map[string]bool),
		evicted: make(map[string]bool),
		now:     time.Now,
	}
}

func (s *SQLiteSessionStore) Resolve(key domain.ConversationKey) domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(key)
}

func (s *SQLiteSessionStore) TryAcquire(key domain.ConversationKey) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy[key.String()] {
		return domain.Session{}, false
	}
	sess := s.resolveLocked(key)
	s.busy[key.String()] = true
	sess.Busy = true
	return sess, true
}

func (s *SQLiteSessionStore) Release(key domain.ConversationKey, handle string, succeeded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.busy, key.String())

	query := `UPDATE sessions SET turn_count = turn_count + 1, last_activity = ? WHERE key_str = ?`
	args := []any{s.now().Format(time.DateTime), key.String()}
	switch {
	case s.evicted[key.String()]:
		// The turn was evicted mid-flight; it contributes neither a
		// turn nor a handle to the now-fresh record.
		delete(s.evicted, key.String())
		query = `UPDATE sessions SET last_activity = ? WHERE key_str = ?`
	case succeeded && handle != "":
		query = `UPDATE sessions SET turn_count = turn_count + 1, last_activity = ?, handle = ? WHERE key_str = ?`
		args = []any{s.now().Format(time.DateTime), handle, key.String()}
	}
	if _, err := s.db.sql.Exec(query, args...); err != nil {
		s.log.Error().Err(err).Str("key", key.String()).Msg("failed to release session")
	}
}

func (s *SQLiteSessionStore) Evict(key domain.ConversationKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy[key.String()] {
		// The in-flight turn still owns the record; dropping the handle
		// forces a fresh backend session next time, and the eviction
		// mark keeps the dying turn's Release from counting.
		_, err := s.db.sql.Exec(
			`UPDATE sessions SET handle = '', turn_count = 0 WHERE key_str = ?`, key.String())
		if err != nil {
			s.log.Error().Err(err).Str("key", key.String()).Msg("failed to clear busy session")
			return false
		}
		s.evicted[key.String()] = true
		return true
	}

	res, err := s.db.sql.Exec(`DELETE FROM sessions WHERE key_str = ?`, key.String())
	if err != nil {
		s.log.Error().Err(err).Str("key", key.String()).Msg("failed to evict session")
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func (s *SQLiteSessionStore) EvictIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-ttl).Format(time.DateTime)

	// Busy sessions are never evicted.
	query := `DELETE FROM sessions WHERE last_activity < ?`
	args := []any{cutoff}
	if len(s.busy) > 0 {
		placeholders := make([]string, 0, len(s.busy))
		for keyStr := range s.busy {
			placeholders = append(placeholders, "?")
			args = append(args, keyStr)
		}
		query += ` AND key_str NOT IN (` + strings.Join(placeholders, ", ") + `)`
	}

	res, err := s.db.sql.Exec(query, args...)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to evict idle sessions")
		return 0
	}
	n, _ := res.RowsAffected()
	return int(n)
}

func (s *SQLiteSessionStore) Snapshot() []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.sql.Query(
		`SELECT id, channel_id, chat_id, thread_id, sender_id, handle, turn_count, created_at, last_activity
		 FROM sessions ORDER BY last_activity DESC`)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list sessions")
		return nil
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to scan session row")
			continue
		}
		sess.Busy = s.busy[sess.Key.String()]
		out = append(out, sess)
	}
	return out
}

// resolveLocked finds or creates the record for key. Caller holds mu.
func (s *SQLiteSessionStore) resolveLocked(key domain.ConversationKey) domain.Session {
	row := s.db.sql.QueryRow(
		`SELECT id, channel_id, chat_id, thread_id, sender_id, handle, turn_count, created_at, last_activity
		 FROM sessions WHERE key_str = ?`, key.String())

	sess, err := scanSession(row)
	if err == nil {
		sess.Busy = s.busy[key.String()]
		return sess
	}
	if !errors.Is(err, sql.ErrNoRows) {
		s.log.Error().Err(err).Str("key", key.String()).Msg("failed to load session")
	}

	now := s.now()
	sess = domain.Session{
		ID:           uuid.New().String(),
		Key:          key,
		CreatedAt:    now,
		LastActivity: now,
	}
	_, err = s.db.sql.Exec(
		`INSERT INTO sessions (id, key_str, channel_id, chat_id, thread_id, sender_id, created_at, last_activity)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, key.String(), key.ChannelID, key.ChatID, key.ThreadID, key.SenderID,
		now.Format(time.DateTime), now.Format(time.DateTime))
	if err != nil {
		s.log.Error().Err(err).Str("key", key.String()).Msg("failed to create session")
	}
	return sess
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (domain.Session, error) {
	var sess domain.Session
	var createdAt, lastActivity string
	err := row.Scan(
		&sess.ID, &sess.Key.ChannelID, &sess.Key.ChatID, &sess.Key.ThreadID,
		&sess.Key.SenderID, &sess.Handle, &sess.TurnCount, &createdAt, &lastActivity)
	if err != nil {
		return domain.Session{}, err
	}
	sess.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	sess.LastActivity, _ = time.Parse(time.DateTime, lastActivity)
	return sess, nil
}
