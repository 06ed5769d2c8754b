// Package session implements the session state machine described in
// section 4.4 of the design specification: a process-singleton that tracks
// whether ingestion is active, which session and date prefix are current,
// and the monotonic success/failure counters surfaced by the control API.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrSessionActive is returned by Start when a session is already active.
var ErrSessionActive = errors.New("session already active")

// ErrInvalidSessionName is returned by Start when a caller-supplied name
// does not match the allowed pattern.
var ErrInvalidSessionName = errors.New("invalid session name")

var sessionNameRE = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// State is the mutable, process-singleton session state. The Active,
// SessionName, and DatePrefix triple is protected by mu; the counters are
// independent atomics so Workers can update them without contending on the
// triple's lock.
type State struct {
	mu          sync.RWMutex
	active      bool
	sessionName string
	datePrefix  string

	processedOK  atomic.Int64
	processedErr atomic.Int64

	errMu     sync.Mutex
	lastError string
}

// New returns an idle State.
func New() *State {
	return &State{}
}

// Snapshot is a point-in-time, read-only copy of the session state, used by
// the control API.
type Snapshot struct {
	Active       bool
	SessionName  string
	DatePrefix   string
	ProcessedOK  int64
	ProcessedErr int64
	LastError    string
}

// Snapshot returns the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.errMu.Lock()
	lastErr := s.lastError
	s.errMu.Unlock()
	return Snapshot{
		Active:       s.active,
		SessionName:  s.sessionName,
		DatePrefix:   s.datePrefix,
		ProcessedOK:  s.processedOK.Load(),
		ProcessedErr: s.processedErr.Load(),
		LastError:    lastErr,
	}
}

// Active reports whether ingestion is currently active.
func (s *State) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Current returns the current session name and date prefix; after Stop they
// are those of the stopped session. ok is false if no session has ever been
// started or resumed.
func (s *State) Current() (sessionName, datePrefix string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionName, s.datePrefix, s.sessionName != ""
}

// Start transitions Idle -> Active, creating the incoming/processing/staging
// directory trees for the session. It returns ErrSessionActive if a session
// is already active, and ErrInvalidSessionName if a caller-supplied name
// fails validation. An empty name auto-generates one via GenerateName.
func (s *State) Start(incomingRoot, processingRoot, stagingRoot, name string) (datePrefix, sessionName string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return "", "", ErrSessionActive
	}

	if name == "" {
		name = GenerateName()
	} else if !sessionNameRE.MatchString(name) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidSessionName, name)
	}

	date := time.Now().UTC().Format("20060102")

	dirs := []string{
		filepath.Join(incomingRoot, name),
		filepath.Join(processingRoot, date, name),
		filepath.Join(stagingRoot, date, name),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", "", fmt.Errorf("creating session directory %s: %w", dir, err)
		}
	}

	s.active = true
	s.sessionName = name
	s.datePrefix = date

	return date, name, nil
}

// Resume sets the active session directly to sessionName/datePrefix without
// creating any directories. It is used by Recovery to auto-resume the most
// recent session found under processing/ at startup, where the directory
// tree already exists from the crashed run.
func (s *State) Resume(sessionName, datePrefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	s.sessionName = sessionName
	s.datePrefix = datePrefix
}

// Stop transitions to Idle. SessionName and DatePrefix are preserved so
// in-flight Workers can still resolve paths for the session being drained.
func (s *State) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

// RecordSuccess increments ProcessedOK.
func (s *State) RecordSuccess() {
	s.processedOK.Add(1)
}

// RecordFailure increments ProcessedErr and records the error message.
func (s *State) RecordFailure(filename string, cause error) {
	s.processedErr.Add(1)
	s.errMu.Lock()
	s.lastError = fmt.Sprintf("%s: %v", filename, cause)
	s.errMu.Unlock()
}

// GenerateName produces an auto-generated session name. The leading "00-"
// and the time-ordered UUIDv7 ensure lexical ordering approximates temporal
// ordering, which Recovery relies on when picking the most recent session.
func GenerateName() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "00-session-" + id.String()
}
