package service

import (
	"context"
	"fmt"

	"github.com/devfolio/portfolio-backend/internal/cache"
	"github.com/devfolio/portfolio-backend/internal/observability"
	"github.com/devfolio/portfolio-backend/internal/repository"
)

// CachedRoleResolver resolves user roles through the tiered cache, falling
// back to the user store and writing results through both tiers.
type CachedRoleResolver struct {
	cache *cache.Tiered
	users repository.UserRepository
}

func NewCachedRoleResolver(tiered *cache.Tiered, users repository.UserRepository) *CachedRoleResolver {
	return &CachedRoleResolver{cache: tiered, users: users}
}

func roleCacheKey(userID uint) string {
	return fmt.Sprintf("role:%d", userID)
}

func (r *CachedRoleResolver) ResolveRole(ctx context.Context, userID uint) (string, error) {
	key := roleCacheKey(userID)
	if role, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		observability.RecordRoleCacheEvent(ctx, "hit")
		return role, nil
	}
	role, err := r.users.RoleByID(ctx, userID)
	if err != nil {
		observability.RecordRoleCacheEvent(ctx, "resolve_error")
		return "", err
	}
	observability.RecordRoleCacheEvent(ctx, "miss")
	r.cache.Set(ctx, key, role)
	return role, nil
}

func (r *CachedRoleResolver) InvalidateUser(ctx context.Context, userID uint) {
	r.cache.Delete(ctx, roleCacheKey(userID))
}

func (r *CachedRoleResolver) InvalidateAll(ctx context.Context) {
	r.cache.Clear(ctx)
}
