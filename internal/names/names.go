package names

import (
	"context"
	"errors"
	"time"

	"auction-sync/internal/models"
	"auction-sync/utils"

	"github.com/coocood/freecache"
)

//go:generate mockgen -source=names.go -destination=mock_names.go -package=names

const (
	DefaultSizeMB = 8
	DefaultTTL    = 10 * time.Minute
)

// UserLookup fetches a user profile from the ledger
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (models.User, error)
}

// Resolver turns bidder ids into display names, caching successful lookups
type Resolver struct {
	api   UserLookup
	cache *freecache.Cache
	ttl   time.Duration
}

func New(api UserLookup, sizeMB int, ttl time.Duration) *Resolver {
	if sizeMB <= 0 {
		sizeMB = DefaultSizeMB
	}
	if ttl < time.Second {
		ttl = DefaultTTL
	}
	return &Resolver{
		api:   api,
		cache: freecache.NewCache(sizeMB * 1024 * 1024),
		ttl:   ttl,
	}
}

// DisplayName returns "First L." for userID. When the lookup fails the raw id
// is returned and nothing is cached.
func (r *Resolver) DisplayName(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}

	key := []byte(userID)
	if val, err := r.cache.Get(key); err == nil {
		return string(val)
	} else if !errors.Is(err, freecache.ErrNotFound) {
		utils.Warn("Name cache read failed", map[string]any{"user": userID, "error": err.Error()})
	}

	user, err := r.api.GetUser(ctx, userID)
	if err != nil {
		utils.Warn("Failed to resolve bidder name", map[string]any{"user": userID, "error": err.Error()})
		return userID
	}

	name := user.DisplayName()
	if err := r.cache.Set(key, []byte(name), int(r.ttl.Seconds())); err != nil {
		utils.Warn("Name cache write failed", map[string]any{"user": userID, "error": err.Error()})
	}
	return name
}

// Resolve looks up every distinct id once
func (r *Resolver) Resolve(ctx context.Context, userIDs []string) map[string]string {
	out := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		if _, ok := out[id]; ok {
			continue
		}
		out[id] = r.DisplayName(ctx, id)
	}
	return out
}

// Forget drops a cached name
func (r *Resolver) Forget(userID string) {
	r.cache.Del([]byte(userID))
}
