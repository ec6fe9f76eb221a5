// Package session persists conversation snapshots so a run can be resumed.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	fctx "github.com/friday-ai/friday/internal/context"
	ferrors "github.com/friday-ai/friday/internal/errors"
	"github.com/friday-ai/friday/internal/logging"
)

const (
	// DefaultMaxSessions is the number of sessions retained when no limit is configured
	DefaultMaxSessions = 20
	// CurrentSessionLink is the name of the symlink to the current session
	CurrentSessionLink = "current"
)

// Session is a saved conversation
type Session struct {
	ID          string      `json:"id"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	TotalTokens int         `json:"total_tokens"`
	Turns       []fctx.Turn `json:"turns"`
}

// Info contains summary information about a session for listing
type Info struct {
	ID          string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	TurnCount   int
	TotalTokens int
	Preview     string // First user message
}

// Store handles session persistence
type Store struct {
	dir         string
	codec       Codec
	maxSessions int
	logger      *logging.Logger
	now         func() time.Time
}

// NewStore creates a store under dir, creating the directory if needed.
func NewStore(dir string, codec Codec, maxSessions int, logger *logging.Logger) (*Store, error) {
	if codec == nil {
		codec = JSONCodec{}
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return &Store{
		dir:         dir,
		codec:       codec,
		maxSessions: maxSessions,
		logger:      logger.WithPrefix("session"),
		now:         time.Now,
	}, nil
}

// Save writes snap under id, or under a fresh id when id is empty, and
// returns the id. The saved session becomes the current one.
func (s *Store) Save(id string, snap fctx.Snapshot) (string, error) {
	if id != "" {
		if err := checkID(id); err != nil {
			return "", err
		}
	}
	now := s.now()
	sess := &Session{ID: id, CreatedAt: now}
	if id == "" {
		sess.ID = uuid.NewString()
	} else if existing, err := s.Load(id); err == nil {
		sess.CreatedAt = existing.CreatedAt
	}
	sess.UpdatedAt = now
	sess.Turns = snap.Turns()
	sess.TotalTokens = snap.TotalTokens

	data, err := s.codec.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.WriteFile(s.path(sess.ID), data, 0600); err != nil {
		return "", fmt.Errorf("failed to write session file: %w", err)
	}

	if err := s.updateCurrentLink(sess.ID); err != nil {
		return "", fmt.Errorf("failed to update current link: %w", err)
	}
	if err := s.cleanupOldSessions(); err != nil {
		s.logger.Warn("failed to cleanup old sessions", logging.Error(err))
	}

	s.logger.Event(logging.EventSessionSave, logging.F("id", sess.ID), logging.TurnCount(len(sess.Turns)), logging.TotalTokens(sess.TotalTokens))
	return sess.ID, nil
}

// Load loads a session by ID
func (s *Store) Load(id string) (*Session, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ferrors.SessionNotFound(id)
		}
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var sess Session
	if err := s.codec.Unmarshal(data, &sess); err != nil {
		return nil, ferrors.SessionCorrupt(id, err)
	}
	return &sess, nil
}

// Restore loads id into cm.
func (s *Store) Restore(cm *fctx.ContextManager, id string) (*Session, error) {
	sess, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	if err := cm.Restore(sess.Turns); err != nil {
		return nil, ferrors.SessionCorrupt(id, err)
	}
	return sess, nil
}

// List returns information about all saved sessions
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	ext := s.codec.Ext()
	var sessions []Info
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ext) || entry.Type()&fs.ModeSymlink != 0 {
			continue
		}

		sess, err := s.Load(strings.TrimSuffix(name, ext))
		if err != nil {
			continue // Skip corrupted sessions
		}

		info := Info{
			ID:          sess.ID,
			CreatedAt:   sess.CreatedAt,
			UpdatedAt:   sess.UpdatedAt,
			TurnCount:   len(sess.Turns),
			TotalTokens: sess.TotalTokens,
		}
		for _, turn := range sess.Turns {
			if turn.Role == fctx.RoleUser {
				info.Preview = truncate(turn.Content, 50)
				break
			}
		}
		sessions = append(sessions, info)
	}

	// Most recent first
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// Current returns the session the current link points to, or nil.
func (s *Store) Current() (*Session, error) {
	linkPath := filepath.Join(s.dir, CurrentSessionLink)
	target, err := os.Readlink(linkPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read current session link: %w", err)
	}

	sess, err := s.Load(strings.TrimSuffix(filepath.Base(target), s.codec.Ext()))
	if err != nil {
		// Current link points to invalid session, remove it
		_ = os.Remove(linkPath)
		return nil, nil
	}
	return sess, nil
}

// Delete removes a session by ID
func (s *Store) Delete(id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ferrors.SessionNotFound(id)
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}

	linkPath := filepath.Join(s.dir, CurrentSessionLink)
	if target, err := os.Readlink(linkPath); err == nil && filepath.Base(target) == id+s.codec.Ext() {
		_ = os.Remove(linkPath)
	}
	return nil
}

// checkID rejects ids that would name a file outside the store directory.
func checkID(id string) error {
	if id == "" || id == "." || id == ".." || id == CurrentSessionLink ||
		strings.ContainsAny(id, `/\`) || filepath.Base(id) != id {
		return ferrors.ConfigInvalid("invalid session id %q", id)
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+s.codec.Ext())
}

func (s *Store) updateCurrentLink(id string) error {
	linkPath := filepath.Join(s.dir, CurrentSessionLink)
	_ = os.Remove(linkPath)
	return os.Symlink(id+s.codec.Ext(), linkPath)
}

// cleanupOldSessions removes sessions beyond maxSessions
func (s *Store) cleanupOldSessions() error {
	sessions, err := s.List()
	if err != nil {
		return err
	}
	for i := s.maxSessions; i < len(sessions); i++ {
		_ = os.Remove(s.path(sessions[i].ID)) // Best effort cleanup
	}
	return nil
}

// truncate truncates a string to maxLen, adding "..." if truncated
func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)

	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// FormatRelativeTime formats a time as a human-readable relative string
func FormatRelativeTime(t, now time.Time) string {
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		if t.Year() == now.Year() {
			return t.Format("Jan 2")
		}
		return t.Format("Jan 2, 2006")
	}
}
