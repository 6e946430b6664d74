package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskhub/taskhub/internal/auth"
	"github.com/taskhub/taskhub/internal/config"
	"github.com/taskhub/taskhub/internal/domain/user"
	"github.com/taskhub/taskhub/internal/http/middlewares"
	"github.com/taskhub/taskhub/internal/repo/postgres"
	"github.com/taskhub/taskhub/internal/security"
)

type UsersStore interface {
	Create(ctx context.Context, name, email, passwordHash string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
}

type TokensStore interface {
	Insert(ctx context.Context, row postgres.TokenRow) error
	Delete(ctx context.Context, id string) error
	ReplaceForUser(ctx context.Context, userID string, row postgres.TokenRow) error
}

type AuthHandler struct {
	users   UsersStore
	tokens  TokensStore
	manager *auth.Manager
	cfg     config.Config
}

func NewAuthHandler(users UsersStore, tokens TokensStore, manager *auth.Manager, cfg config.Config) *AuthHandler {
	return &AuthHandler{
		users:   users,
		tokens:  tokens,
		manager: manager,
		cfg:     cfg,
	}
}

type RegisterRequest struct {
	Name                 string `json:"name" binding:"required,max=255"`
	Email                string `json:"email" binding:"required,email,max=255"`
	Password             string `json:"password" binding:"required"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	errs := map[string][]string{}

	if err := ctx.ShouldBindJSON(&req); err != nil {
		errs = parseBindError(err, &req, "json")

		// a body that never decoded has no field values to policy-check
		if len(errs["body"]) > 0 {
			RespondValidation(ctx, errs)
			return
		}
	}

	// password policy and confirmation are config-dependent, so they are
	// checked here rather than in binding tags. All field errors go out in
	// one response. An already-failed password field keeps its bind error.
	if len(errs["password"]) == 0 {
		if len(req.Password) < h.cfg.PasswordMinLen {
			errs["password"] = append(errs["password"],
				fmt.Sprintf("The password must be at least %d characters.", h.cfg.PasswordMinLen))
		}

		if req.PasswordConfirmation != req.Password {
			errs["password"] = append(errs["password"], "The password confirmation does not match.")
		}
	}

	if len(errs) > 0 {
		RespondValidation(ctx, errs)
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	u, err := h.users.Create(cctx, req.Name, req.Email, hash)

	if err != nil {
		if errors.Is(err, postgres.ErrEmailTaken) {
			RespondFieldError(ctx, "email", "The email has already been taken.")
			return
		}

		RespondInternal(ctx, "Could not create user")
		return
	}

	plain, err := h.issueToken(cctx, u.ID)

	if err != nil {
		RespondInternal(ctx, "Could not create session")
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"user":       u,
		"token":      plain,
		"token_type": "Bearer",
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}
	// short timeout for DB lookup
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByEmail(cctx, req.Email)
	if err != nil {
		// same body whether the email is unknown or the password is wrong
		RespondFieldError(ctx, "email", "The provided credentials are incorrect.")
		return
	}

	err = security.CheckPassword(foundUser.PasswordHash, req.Password)

	if err != nil {
		RespondFieldError(ctx, "email", "The provided credentials are incorrect.")
		return
	}

	// a fresh login revokes every other session the user has
	id, plain, err := h.manager.Mint()

	if err != nil {
		RespondInternal(ctx, "Could not create session")
		return
	}

	row := postgres.TokenRow{
		ID:        id,
		UserID:    foundUser.ID,
		TokenHash: h.manager.Hash(plain),
		CreatedAt: time.Now().UTC(),
	}

	if err := h.tokens.ReplaceForUser(cctx, foundUser.ID, row); err != nil {
		RespondInternal(ctx, "Could not create session")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"user":       foundUser,
		"token":      plain,
		"token_type": "Bearer",
	})
}

// Logout revokes exactly the token that authenticated this call. Other
// sessions of the same user stay valid.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	tokenID, ok := middlewares.CurrentTokenID(ctx)

	if !ok || tokenID == "" {
		RespondUnauthenticated(ctx)
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	if err := h.tokens.Delete(cctx, tokenID); err != nil {
		RespondInternal(ctx, "Could not log out")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Successfully logged out",
	})
}

func (h *AuthHandler) CurrentUser(ctx *gin.Context) {
	u, ok := middlewares.CurrentUser(ctx)

	if !ok {
		RespondUnauthenticated(ctx)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, u)
}

// Helper functions

func (h *AuthHandler) issueToken(ctx context.Context, userID string) (string, error) {
	id, plain, err := h.manager.Mint()

	if err != nil {
		return "", err
	}

	row := postgres.TokenRow{
		ID:        id,
		UserID:    userID,
		TokenHash: h.manager.Hash(plain),
		CreatedAt: time.Now().UTC(),
	}

	err = h.tokens.Insert(ctx, row)

	if err != nil {
		return "", err
	}

	return plain, nil
}
