package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/repository"
)

type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

type AuthUser struct {
	ID       uint   `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

// ContextValue is the derived auth state handed to consumers. It is
// recomputed on every underlying change, never cached independently of the
// role cache.
type ContextValue struct {
	User     *AuthUser `json:"user"`
	Loading  bool      `json:"loading"`
	IsAdmin  bool      `json:"is_admin"`
	IsEditor bool      `json:"is_editor"`
}

// AuthContext tracks the current identity through auth-state events. It
// starts Loading and becomes Resolved or Anonymous; role lookups fail closed
// to no elevated privileges.
type AuthContext struct {
	mu       sync.RWMutex
	value    ContextValue
	resolver RoleResolver
	users    repository.UserRepository
	logger   *slog.Logger
	subs     map[int]func(ContextValue)
	nextSub  int
}

func NewAuthContext(resolver RoleResolver, users repository.UserRepository, logger *slog.Logger) *AuthContext {
	return &AuthContext{
		value:    ContextValue{Loading: true},
		resolver: resolver,
		users:    users,
		logger:   logger,
		subs:     make(map[int]func(ContextValue)),
	}
}

// Value returns the current derived auth state.
func (a *AuthContext) Value() ContextValue {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.value
}

// Subscribe registers fn for every state change and returns the teardown
// function releasing the subscription.
func (a *AuthContext) Subscribe(fn func(ContextValue)) func() {
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = fn
	a.mu.Unlock()
	return func() {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()
	}
}

// HandleEvent drives the state machine. SIGNED_IN resolves profile and role
// before exposing the value; SIGNED_OUT purges the user's cached role;
// TOKEN_REFRESHED re-resolves without re-entering Loading.
func (a *AuthContext) HandleEvent(ctx context.Context, event AuthEvent, userID uint) {
	switch event {
	case EventSignedIn:
		a.resolve(ctx, userID)
	case EventTokenRefreshed:
		a.resolve(ctx, userID)
	case EventSignedOut:
		a.resolver.InvalidateUser(ctx, userID)
		a.set(ContextValue{Loading: false})
	default:
		a.logger.Warn("ignoring unknown auth event", "event", string(event))
	}
}

func (a *AuthContext) resolve(ctx context.Context, userID uint) {
	user, err := a.users.FindByID(ctx, userID)
	if err != nil {
		a.logger.Error("auth profile lookup failed", "user_id", userID, "error", err)
		a.set(ContextValue{Loading: false})
		return
	}
	role, err := a.resolver.ResolveRole(ctx, userID)
	if err != nil {
		// Fail closed: the user stays signed in with no elevated privileges.
		a.logger.Error("role resolution failed", "user_id", userID, "error", err)
		role = ""
	}
	a.set(ContextValue{
		User:     &AuthUser{ID: user.ID, Email: user.Email, FullName: user.FullName, Role: role},
		Loading:  false,
		IsAdmin:  domain.IsAdmin(role),
		IsEditor: domain.IsEditor(role),
	})
}

func (a *AuthContext) set(v ContextValue) {
	a.mu.Lock()
	a.value = v
	fns := make([]func(ContextValue), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}
