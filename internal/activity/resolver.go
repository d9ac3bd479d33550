package activity

import (
	"context"
	"strings"
	"sync"

	"github.com/tsiken/backend/internal/models"
	"go.uber.org/zap"
)

// ProfileLookup fetches the profile of a user by id. A nil profile with a nil
// error means the user does not exist.
type ProfileLookup interface {
	GetProfile(ctx context.Context, id string) (*models.UserProfile, error)
}

type actor struct {
	name string
	role string
}

// Resolver labels actors and remembers each answer for its own lifetime.
// Create one per aggregation.
type Resolver struct {
	lookup ProfileLookup
	log    *zap.Logger

	mu    sync.Mutex
	cache map[string]actor
}

func NewResolver(lookup ProfileLookup, log *zap.Logger) *Resolver {
	return &Resolver{
		lookup: lookup,
		log:    log,
		cache:  make(map[string]actor),
	}
}

// Resolve returns the display name and role for actorID. Empty results mean
// the profile could not be found; the caller applies defaults.
func (r *Resolver) Resolve(ctx context.Context, actorID string) (name, role string) {
	if actorID == "" || r.lookup == nil {
		return "", ""
	}

	r.mu.Lock()
	a, ok := r.cache[actorID]
	r.mu.Unlock()
	if ok {
		return a.name, a.role
	}

	profile, err := r.lookup.GetProfile(ctx, actorID)
	if err != nil {
		r.log.Warn("actor lookup failed", zap.String("actor_id", actorID), zap.Error(err))
	}
	if profile != nil {
		a.name = strings.TrimSpace(strings.TrimSpace(profile.FirstName) + " " + strings.TrimSpace(profile.LastName))
		if a.name == "" {
			a.name = profile.Email
		}
		a.role = profile.Role
	}

	r.mu.Lock()
	r.cache[actorID] = a
	r.mu.Unlock()
	return a.name, a.role
}

// Lookups reports how many distinct actors were resolved.
func (r *Resolver) Lookups() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
