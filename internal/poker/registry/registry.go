// Package registry tracks live sessions by their join code.
package registry

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"

	"github.com/louisbranch/planning.poker/internal/core/consensus"
	apperrors "github.com/louisbranch/planning.poker/internal/errors"
	"github.com/louisbranch/planning.poker/internal/poker/domain"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6

	// maxCodeAttempts bounds collision retries before giving up. The code
	// space has 36^6 entries, so hitting the bound means something is wrong
	// with the generator, not the load.
	maxCodeAttempts = 10
)

var (
	// ErrNotFound indicates no live session for the given code.
	ErrNotFound = apperrors.New(apperrors.CodeGameNotFound, "no session with that code")
	// ErrCodeSpaceExhausted indicates repeated code collisions.
	ErrCodeSpaceExhausted = apperrors.New(apperrors.CodeCodeSpaceExhausted, "could not allocate a session code")
)

// CreateInput carries the session parameters supplied at creation time.
type CreateInput struct {
	Title string
	Tasks []string
	Mode  consensus.Mode
	// CurrentTask is non-zero only when resuming from a snapshot.
	CurrentTask int
}

// Registry is a concurrency-safe code→session map.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session

	// newCode is swappable in tests to force collisions.
	newCode func() (string, error)
}

// New returns an empty registry using crypto/rand code generation.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*domain.Session),
		newCode:  NewCode,
	}
}

// NewCode generates a random 6-character session code drawn from A-Z0-9.
func NewCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// Create allocates a fresh code, builds the session, and registers it.
func (r *Registry) Create(input CreateInput) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := r.allocateCode()
	if err != nil {
		return nil, err
	}

	session, err := domain.New(domain.Config{
		Code:        code,
		Title:       input.Title,
		Tasks:       input.Tasks,
		Mode:        input.Mode,
		CurrentTask: input.CurrentTask,
	})
	if err != nil {
		return nil, err
	}

	r.sessions[code] = session
	return session, nil
}

// Get looks up a session by code. Lookup is case-insensitive.
func (r *Registry) Get(code string) (*domain.Session, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[normalized]
	if !ok {
		return nil, ErrNotFound
	}
	return session, nil
}

// Remove drops the session for the given code. Removing an unknown code is
// not an error.
func (r *Registry) Remove(code string) {
	normalized := strings.ToUpper(strings.TrimSpace(code))

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, normalized)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// allocateCode retries generation until it finds an unused code. Callers
// must hold the lock.
func (r *Registry) allocateCode() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := r.newCode()
		if err != nil {
			return "", err
		}
		if _, taken := r.sessions[code]; !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}
