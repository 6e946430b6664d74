package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/taskhub/taskhub/internal/auth"
	"github.com/taskhub/taskhub/internal/config"
	"github.com/taskhub/taskhub/internal/domain/user"
	"github.com/taskhub/taskhub/internal/http/handlers"
	"github.com/taskhub/taskhub/internal/repo/postgres"
	"github.com/taskhub/taskhub/internal/security"
)

type fakeUsersStore struct {
	createFn     func(ctx context.Context, name, email, passwordHash string) (user.User, error)
	getByEmailFn func(ctx context.Context, email string) (user.User, error)
}

func (f *fakeUsersStore) Create(ctx context.Context, name, email, passwordHash string) (user.User, error) {
	return f.createFn(ctx, name, email, passwordHash)
}

func (f *fakeUsersStore) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return f.getByEmailFn(ctx, email)
}

type fakeTokensStore struct {
	inserted []postgres.TokenRow
	deleted  []string
	replaced []string

	insertErr  error
	deleteErr  error
	replaceErr error
}

func (f *fakeTokensStore) Insert(ctx context.Context, row postgres.TokenRow) error {
	f.inserted = append(f.inserted, row)
	return f.insertErr
}

func (f *fakeTokensStore) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeTokensStore) ReplaceForUser(ctx context.Context, userID string, row postgres.TokenRow) error {
	f.replaced = append(f.replaced, userID)
	f.inserted = append(f.inserted, row)
	return f.replaceErr
}

func testConfig() config.Config {
	return config.Config{
		TokenSecret:    "test-secret",
		PasswordMinLen: 8,
	}
}

func setupAuthRouter(users handlers.UsersStore, tokens handlers.TokensStore) *gin.Engine {
	r := gin.New()
	h := handlers.NewAuthHandler(users, tokens, auth.NewManager("test-secret"), testConfig())

	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.POST("/logout", asUser(alice), h.Logout)
	r.GET("/user", asUser(alice), h.CurrentUser)

	return r
}

type sessionResponse struct {
	User      user.User `json:"user"`
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
}

type errorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}

func TestRegister(t *testing.T) {
	t.Run("happy path issues a bearer token", func(t *testing.T) {
		users := &fakeUsersStore{
			createFn: func(_ context.Context, name, email, passwordHash string) (user.User, error) {
				if err := security.CheckPassword(passwordHash, "hunter2hunter2"); err != nil {
					t.Errorf("stored hash does not match the password: %v", err)
				}
				return user.User{ID: alice.ID, Name: name, Email: email}, nil
			},
		}
		tokens := &fakeTokensStore{}

		r := setupAuthRouter(users, tokens)
		w := doJSON(r, http.MethodPost, "/register",
			`{"name":"Alice","email":"alice@example.com","password":"hunter2hunter2","password_confirmation":"hunter2hunter2"}`)

		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}

		var resp sessionResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}

		if resp.TokenType != "Bearer" {
			t.Fatalf("token_type = %q", resp.TokenType)
		}
		if _, ok := auth.SplitTokenID(resp.Token); !ok {
			t.Fatalf("token is not in id.secret form: %q", resp.Token)
		}
		if len(tokens.inserted) != 1 {
			t.Fatalf("inserted %d token rows, want 1", len(tokens.inserted))
		}
		if tokens.inserted[0].TokenHash == resp.Token {
			t.Fatalf("plaintext token was stored")
		}
	})

	t.Run("validation failures", func(t *testing.T) {
		tests := []struct {
			name      string
			body      string
			wantField string
		}{
			{
				name:      "missing email",
				body:      `{"name":"Alice","password":"hunter2hunter2","password_confirmation":"hunter2hunter2"}`,
				wantField: "email",
			},
			{
				name:      "malformed email",
				body:      `{"name":"Alice","email":"nope","password":"hunter2hunter2","password_confirmation":"hunter2hunter2"}`,
				wantField: "email",
			},
			{
				name:      "short password",
				body:      `{"name":"Alice","email":"alice@example.com","password":"short","password_confirmation":"short"}`,
				wantField: "password",
			},
			{
				name:      "confirmation mismatch",
				body:      `{"name":"Alice","email":"alice@example.com","password":"hunter2hunter2","password_confirmation":"other"}`,
				wantField: "password",
			},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				users := &fakeUsersStore{
					createFn: func(context.Context, string, string, string) (user.User, error) {
						t.Error("Create must not be called on invalid input")
						return user.User{}, nil
					},
				}
				r := setupAuthRouter(users, &fakeTokensStore{})

				w := doJSON(r, http.MethodPost, "/register", tc.body)

				if w.Code != http.StatusUnprocessableEntity {
					t.Fatalf("status = %d, want 422 (body %s)", w.Code, w.Body.String())
				}

				var resp errorResponse
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("unmarshal: %v", err)
				}
				if resp.Message != "The given data was invalid." {
					t.Fatalf("message = %q", resp.Message)
				}
				if len(resp.Errors[tc.wantField]) == 0 {
					t.Fatalf("expected an error on %q, got %v", tc.wantField, resp.Errors)
				}
			})
		}
	})

	t.Run("bind and policy errors arrive together", func(t *testing.T) {
		users := &fakeUsersStore{
			createFn: func(context.Context, string, string, string) (user.User, error) {
				t.Error("Create must not be called on invalid input")
				return user.User{}, nil
			},
		}
		r := setupAuthRouter(users, &fakeTokensStore{})

		// email is missing AND the password is too short: both field
		// lists come back in the one 422
		w := doJSON(r, http.MethodPost, "/register",
			`{"name":"Alice","password":"short","password_confirmation":"short"}`)

		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422 (body %s)", w.Code, w.Body.String())
		}

		var resp errorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if len(resp.Errors["email"]) == 0 {
			t.Fatalf("missing email error: %v", resp.Errors)
		}
		if got := resp.Errors["password"]; len(got) != 1 || got[0] != "The password must be at least 8 characters." {
			t.Fatalf("errors.password = %v", got)
		}
	})

	t.Run("a missing password reports only the required error", func(t *testing.T) {
		r := setupAuthRouter(&fakeUsersStore{}, &fakeTokensStore{})

		w := doJSON(r, http.MethodPost, "/register",
			`{"name":"Alice","email":"alice@example.com"}`)

		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422 (body %s)", w.Code, w.Body.String())
		}

		var resp errorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got := resp.Errors["password"]; len(got) != 1 || got[0] != "The password field is required." {
			t.Fatalf("errors.password = %v", got)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		users := &fakeUsersStore{
			createFn: func(context.Context, string, string, string) (user.User, error) {
				return user.User{}, postgres.ErrEmailTaken
			},
		}
		r := setupAuthRouter(users, &fakeTokensStore{})

		w := doJSON(r, http.MethodPost, "/register",
			`{"name":"Alice","email":"alice@example.com","password":"hunter2hunter2","password_confirmation":"hunter2hunter2"}`)

		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", w.Code)
		}

		var resp errorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got := resp.Errors["email"]; len(got) != 1 || got[0] != "The email has already been taken." {
			t.Fatalf("errors.email = %v", got)
		}
	})
}

func TestLogin(t *testing.T) {
	hash, err := security.HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("hash fixture: %v", err)
	}

	stored := user.User{ID: alice.ID, Name: "Alice", Email: "alice@example.com", PasswordHash: hash}

	t.Run("replaces every existing session", func(t *testing.T) {
		users := &fakeUsersStore{
			getByEmailFn: func(context.Context, string) (user.User, error) {
				return stored, nil
			},
		}
		tokens := &fakeTokensStore{}

		r := setupAuthRouter(users, tokens)
		w := doJSON(r, http.MethodPost, "/login",
			`{"email":"alice@example.com","password":"hunter2hunter2"}`)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}

		if len(tokens.replaced) != 1 || tokens.replaced[0] != alice.ID {
			t.Fatalf("ReplaceForUser calls = %v, want one for %s", tokens.replaced, alice.ID)
		}

		var resp sessionResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if resp.Token == "" || resp.TokenType != "Bearer" {
			t.Fatalf("bad session payload: %s", w.Body.String())
		}
	})

	t.Run("unknown email and wrong password are indistinguishable", func(t *testing.T) {
		unknown := &fakeUsersStore{
			getByEmailFn: func(context.Context, string) (user.User, error) {
				return user.User{}, postgres.ErrUserNotFound
			},
		}
		wrongPassword := &fakeUsersStore{
			getByEmailFn: func(context.Context, string) (user.User, error) {
				return stored, nil
			},
		}

		bodies := map[string]string{}
		for name, users := range map[string]handlers.UsersStore{
			"unknown email":  unknown,
			"wrong password": wrongPassword,
		} {
			r := setupAuthRouter(users, &fakeTokensStore{})
			w := doJSON(r, http.MethodPost, "/login",
				`{"email":"alice@example.com","password":"wrong-password"}`)

			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("%s: status = %d, want 422", name, w.Code)
			}
			bodies[name] = w.Body.String()
		}

		if bodies["unknown email"] != bodies["wrong password"] {
			t.Fatalf("failure bodies differ:\n%s\n%s", bodies["unknown email"], bodies["wrong password"])
		}

		var resp errorResponse
		if err := json.Unmarshal([]byte(bodies["unknown email"]), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got := resp.Errors["email"]; len(got) != 1 || got[0] != "The provided credentials are incorrect." {
			t.Fatalf("errors.email = %v", got)
		}
	})
}

func TestLogout(t *testing.T) {
	tokens := &fakeTokensStore{}
	r := setupAuthRouter(&fakeUsersStore{}, tokens)

	w := doJSON(r, http.MethodPost, "/logout", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Message != "Successfully logged out" {
		t.Fatalf("message = %q", resp.Message)
	}

	// only the presenting token goes away
	if len(tokens.deleted) != 1 || tokens.deleted[0] != "test-token-id" {
		t.Fatalf("deleted = %v, want exactly the current token", tokens.deleted)
	}
}

func TestCurrentUser(t *testing.T) {
	r := setupAuthRouter(&fakeUsersStore{}, &fakeTokensStore{})

	w := doJSON(r, http.MethodGet, "/user", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp user.User
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ID != alice.ID || resp.Email != alice.Email {
		t.Fatalf("wrong identity returned: %+v", resp)
	}

	if w.Header().Get("ETag") == "" {
		t.Fatalf("expected an ETag header")
	}
}
