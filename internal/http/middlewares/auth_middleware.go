package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/taskhub/taskhub/internal/auth"
	"github.com/taskhub/taskhub/internal/cache"
	"github.com/taskhub/taskhub/internal/domain/user"
	"github.com/taskhub/taskhub/internal/repo/postgres"
)

// Keep these interfaces small so tests can fake them easily.
type TokenStore interface {
	GetByID(ctx context.Context, id string) (postgres.TokenRow, error)
	Touch(ctx context.Context, id string) error
}

type UserStore interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

type AuthMiddleware struct {
	tokens  TokenStore
	users   UserStore
	manager *auth.Manager

	// Users have no profile-edit surface, so a short-lived cache of user
	// records is safe. Token revocation is NOT cached: the token row is
	// looked up on every request.
	userCache *cache.Cache
}

func NewAuthMiddleware(tokens TokenStore, users UserStore, manager *auth.Manager, userCache *cache.Cache) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:    tokens,
		users:     users,
		manager:   manager,
		userCache: userCache,
	}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			unauthenticated(c)
			return
		}

		raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if raw == "" {
			unauthenticated(c)
			return
		}

		tokenID, ok := auth.SplitTokenID(raw)
		if !ok {
			unauthenticated(c)
			return
		}

		row, err := m.tokens.GetByID(c.Request.Context(), tokenID)
		if err != nil {
			unauthenticated(c)
			return
		}

		if !m.manager.Matches(row.TokenHash, raw) {
			unauthenticated(c)
			return
		}

		u, err := m.lookupUser(c.Request.Context(), row.UserID)
		if err != nil {
			unauthenticated(c)
			return
		}

		// best effort, auth must not fail on it
		_ = m.tokens.Touch(c.Request.Context(), row.ID)

		c.Set(string(CtxUser), u)
		c.Set(string(CtxTokenID), row.ID)

		c.Next()
	}
}

func (m *AuthMiddleware) lookupUser(ctx context.Context, id string) (user.User, error) {
	if m.userCache != nil {
		if v, ok := m.userCache.Get("user:" + id); ok {
			if u, ok := v.(user.User); ok {
				return u, nil
			}
		}
	}

	u, err := m.users.GetByID(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	if m.userCache != nil {
		m.userCache.Set("user:"+id, u)
	}

	return u, nil
}

func unauthenticated(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"message": "Unauthenticated",
	})
}

// Helpers so handlers don't need to know the magic keys.

func CurrentUser(c *gin.Context) (user.User, bool) {
	v, ok := c.Get(string(CtxUser))
	if !ok {
		return user.User{}, false
	}
	u, ok := v.(user.User)
	return u, ok
}

func CurrentTokenID(c *gin.Context) (string, bool) {
	v, ok := c.Get(string(CtxTokenID))
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}
