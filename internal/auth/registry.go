package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	maxNameLength     = 32
)

type account struct {
	identity Identity
	hash     []byte
}

// Registry is an in-memory account store for development deployments. It resolves
// display names for the round service.
type Registry struct {
	cost int

	mu     sync.RWMutex
	byID   map[string]*account
	byName map[string]*account
}

// NewRegistry creates an empty registry hashing passwords with the given bcrypt cost.
// A zero cost selects bcrypt.DefaultCost.
func NewRegistry(cost int) *Registry {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Registry{
		cost:   cost,
		byID:   make(map[string]*account),
		byName: make(map[string]*account),
	}
}

// ValidationError reports unusable registration input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Register creates an account and returns its identity.
func (r *Registry) Register(name, password string) (Identity, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return Identity{}, &ValidationError{Message: "name is required"}
	case len(name) > maxNameLength:
		return Identity{}, &ValidationError{Message: fmt.Sprintf("name must be at most %d characters", maxNameLength)}
	case len(password) < minPasswordLength:
		return Identity{}, &ValidationError{Message: fmt.Sprintf("password must be at least %d characters", minPasswordLength)}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.cost)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to hash password: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(name)
	if _, exists := r.byName[key]; exists {
		return Identity{}, ErrNameTaken
	}
	acc := &account{
		identity: Identity{UserID: uuid.NewString(), Name: name},
		hash:     hash,
	}
	r.byID[acc.identity.UserID] = acc
	r.byName[key] = acc
	return acc.identity, nil
}

// Login checks a name and password.
func (r *Registry) Login(name, password string) (Identity, error) {
	r.mu.RLock()
	acc, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	r.mu.RUnlock()
	if !ok {
		return Identity{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, fmt.Errorf("failed to verify password: %w", err)
	}
	return acc.identity, nil
}

// Lookup returns the identity registered under id.
func (r *Registry) Lookup(id string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acc, ok := r.byID[id]
	if !ok {
		return Identity{}, false
	}
	return acc.identity, true
}

// DisplayName implements round.Directory. Unknown ids resolve to themselves.
func (r *Registry) DisplayName(_ context.Context, id string) string {
	if identity, ok := r.Lookup(id); ok {
		return identity.Name
	}
	return id
}
