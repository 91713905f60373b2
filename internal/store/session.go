package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"go-scriptloop/pkg/models"
)

// SessionStore holds at most one checkpointed session.
type SessionStore struct {
	path string
}

func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

func (s *SessionStore) Path() string {
	return s.path
}

// Save overwrites any previous session.
func (s *SessionStore) Save(session models.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if session.Examples == nil {
		session.Examples = []models.Example{}
	}
	if err := writeJSON(s.path, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load reports false when there is no usable session. A corrupt file is
// treated as absent.
func (s *SessionStore) Load() (models.Session, bool) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("file", s.path).Msg("unable to read session state")
		}
		return models.Session{}, false
	}
	var session models.Session
	if err := json.Unmarshal(b, &session); err != nil {
		log.Warn().Err(err).Str("file", s.path).Msg("corrupted session state file")
		return models.Session{}, false
	}
	if err := session.Validate(); err != nil {
		log.Warn().Err(err).Str("file", s.path).Msg("invalid session state file")
		return models.Session{}, false
	}
	return session, true
}

func (s *SessionStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *SessionStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
