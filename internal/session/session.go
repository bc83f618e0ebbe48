package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/zapdesk/internal/backend"
	"github.com/foxzi/zapdesk/internal/ident"
)

// ErrNoSession is returned when nobody is logged in
var ErrNoSession = errors.New("no active session")

var (
	bucketSession = []byte("session")
	keyCurrent    = []byte("current")
)

// Session is the persisted login
type Session struct {
	Token     string       `json:"token"`
	User      backend.User `json:"user"`
	ExpiresAt *time.Time   `json:"expires_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Expired reports whether the token has passed its expiry
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

type claims struct {
	TenantID ident.ID `json:"tenant_id"`
	jwt.RegisteredClaims
}

// FromLogin builds a session from a login response. Token claims are read
// without verification; the backend verifies them on every request.
func FromLogin(resp *backend.LoginResponse, now time.Time) (*Session, error) {
	if resp == nil || resp.Token == "" {
		return nil, errors.New("empty login response")
	}

	s := &Session{
		Token:     resp.Token,
		User:      resp.User,
		CreatedAt: now,
	}

	var c claims
	if _, _, err := jwt.NewParser().ParseUnverified(resp.Token, &c); err != nil {
		// Opaque tokens are fine, they just carry no claims
		return s, nil
	}
	if s.User.TenantID.IsZero() {
		s.User.TenantID = c.TenantID
	}
	if s.User.ID.IsZero() && c.Subject != "" {
		s.User.ID = ident.ID(c.Subject)
	}
	if c.ExpiresAt != nil {
		exp := c.ExpiresAt.Time
		s.ExpiresAt = &exp
	}
	return s, nil
}

// Store persists the current session in BoltDB
type Store struct {
	db *bolt.DB

	mu      sync.RWMutex
	current *Session
}

// Open opens or creates the session database
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSession)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the current session
func (s *Store) Save(sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Put(keyCurrent, data)
	})
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	s.mu.Lock()
	cp := *sess
	s.current = &cp
	s.mu.Unlock()
	return nil
}

// Load returns the current session
func (s *Store) Load() (*Session, error) {
	s.mu.RLock()
	if s.current != nil {
		cp := *s.current
		s.mu.RUnlock()
		return &cp, nil
	}
	s.mu.RUnlock()

	var sess *Session
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSession).Get(keyCurrent)
		if data == nil {
			return ErrNoSession
		}
		sess = &Session{}
		return json.Unmarshal(data, sess)
	})
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	s.mu.Lock()
	cp := *sess
	s.current = &cp
	s.mu.Unlock()
	return sess, nil
}

// Clear removes the current session
func (s *Store) Clear() error {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Delete(keyCurrent)
	})
}

// Token returns the bearer token of the current session, or "" if none
func (s *Store) Token() string {
	sess, err := s.Load()
	if err != nil {
		return ""
	}
	return sess.Token
}

// TenantID returns the tenant of the current session
func (s *Store) TenantID() string {
	sess, err := s.Load()
	if err != nil {
		return ""
	}
	return sess.User.TenantID.String()
}
