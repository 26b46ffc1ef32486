package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/observability"
	"github.com/devfolio/portfolio-backend/internal/repository"
	"github.com/devfolio/portfolio-backend/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRefresh     = errors.New("invalid or revoked refresh token")
)

// TokenPair is what a successful login or refresh hands back to the client.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ClientInfo identifies the device behind a login for session bookkeeping.
type ClientInfo struct {
	UserAgent string
	IP        string
}

// AuthService owns login, refresh, and logout. Every successful transition
// also drives the shared AuthContext so presence and notification consumers
// see the identity change without polling.
type AuthService struct {
	users       repository.UserRepository
	sessions    repository.AuthSessionRepository
	jwt         *security.JWTManager
	oauth       security.OAuthProvider
	roles       RoleResolver
	authCtx     *AuthContext
	accessTTL   time.Duration
	refreshTTL  time.Duration
	tokenPepper string
	logger      *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.AuthSessionRepository,
	jwt *security.JWTManager,
	oauth security.OAuthProvider,
	roles RoleResolver,
	authCtx *AuthContext,
	accessTTL, refreshTTL time.Duration,
	tokenPepper string,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:       users,
		sessions:    sessions,
		jwt:         jwt,
		oauth:       oauth,
		roles:       roles,
		authCtx:     authCtx,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		tokenPepper: tokenPepper,
		logger:      logger,
	}
}

// AuthCodeURL returns the Google consent URL for the given CSRF state.
func (s *AuthService) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

// LoginWithGoogle exchanges the OAuth code, upserts the user, and issues a
// token pair. New users start with the default role.
func (s *AuthService) LoginWithGoogle(ctx context.Context, code string, client ClientInfo) (*domain.User, *TokenPair, error) {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("exchange oauth code: %w", err)
	}
	info, err := s.oauth.FetchUserInfo(ctx, token)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch userinfo: %w", err)
	}

	user, err := s.users.FindByGoogleID(ctx, info.ProviderUserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Link by email when the account predates Google sign-in.
		user, err = s.users.FindByEmail(ctx, info.Email)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = &domain.User{
				Email:    info.Email,
				FullName: info.Name,
				Role:     domain.RoleUser,
				GoogleID: &info.ProviderUserID,
			}
			if err := s.users.Create(ctx, user); err != nil {
				return nil, nil, fmt.Errorf("create user: %w", err)
			}
		} else if err != nil {
			return nil, nil, err
		}
	} else if err != nil {
		return nil, nil, err
	}

	return s.establishSession(ctx, user, client, EventSignedIn)
}

// LoginWithPassword authenticates a local account. Missing users and wrong
// passwords are indistinguishable to the caller.
func (s *AuthService) LoginWithPassword(ctx context.Context, email, password string, client ClientInfo) (*domain.User, *TokenPair, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	if user.PasswordHash == "" || !security.CheckPassword(user.PasswordHash, password) {
		return nil, nil, ErrInvalidCredentials
	}
	return s.establishSession(ctx, user, client, EventSignedIn)
}

func (s *AuthService) establishSession(ctx context.Context, user *domain.User, client ClientInfo, event AuthEvent) (*domain.User, *TokenPair, error) {
	role, err := s.roles.ResolveRole(ctx, user.ID)
	if err != nil {
		// Fail closed: issue no elevated claims when the role is unknown.
		s.logger.Warn("role resolution failed at login", "user_id", user.ID, "error", err)
		role = ""
	}

	access, err := s.jwt.SignAccessToken(user.ID, role, s.accessTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.jwt.SignRefreshToken(user.ID, s.refreshTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("sign refresh token: %w", err)
	}
	sess := &domain.AuthSession{
		UserID:           user.ID,
		RefreshTokenHash: security.HashRefreshToken(refresh, s.tokenPepper),
		UserAgent:        client.UserAgent,
		IP:               client.IP,
		ExpiresAt:        time.Now().Add(s.refreshTTL),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("persist session: %w", err)
	}

	observability.RecordAccessTokenValidation(ctx, "issued", "login")
	if s.authCtx != nil {
		s.authCtx.HandleEvent(ctx, event, user.ID)
	}
	return user, &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(s.accessTTL),
	}, nil
}

// Refresh rotates the token pair. The presented refresh token is revoked and
// replaced so each token is usable once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (*TokenPair, error) {
	claims, err := s.jwt.ParseRefreshToken(refreshToken)
	if err != nil {
		observability.RecordAccessTokenValidation(ctx, "invalid", "refresh")
		return nil, ErrInvalidRefresh
	}
	hash := security.HashRefreshToken(refreshToken, s.tokenPepper)
	sess, err := s.sessions.FindByHash(ctx, hash)
	if errors.Is(err, repository.ErrSessionNotFound) {
		observability.RecordAccessTokenValidation(ctx, "revoked", "refresh")
		return nil, ErrInvalidRefresh
	}
	if err != nil {
		return nil, err
	}
	if sess.RevokedAt != nil || time.Now().After(sess.ExpiresAt) {
		observability.RecordAccessTokenValidation(ctx, "revoked", "refresh")
		return nil, ErrInvalidRefresh
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidRefresh
	}

	if err := s.sessions.RevokeByHash(ctx, hash); err != nil {
		return nil, fmt.Errorf("revoke session: %w", err)
	}
	user, err := s.users.FindByID(ctx, uint(userID))
	if err != nil {
		return nil, err
	}
	_, pair, err := s.establishSession(ctx, user, client, EventTokenRefreshed)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout revokes the presented refresh token's session and flips the auth
// context to anonymous. An already revoked token is not an error.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, userID uint) error {
	hash := security.HashRefreshToken(refreshToken, s.tokenPepper)
	if err := s.sessions.RevokeByHash(ctx, hash); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return err
	}
	if s.authCtx != nil {
		s.authCtx.HandleEvent(ctx, EventSignedOut, userID)
	}
	return nil
}

// RevokeAll force-logs-out every session for the user, e.g. after a role
// change.
func (s *AuthService) RevokeAll(ctx context.Context, userID uint) error {
	if err := s.sessions.RevokeByUserID(ctx, userID); err != nil {
		return err
	}
	s.roles.InvalidateUser(ctx, userID)
	return nil
}
