package middlewares_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskhub/taskhub/internal/auth"
	"github.com/taskhub/taskhub/internal/cache"
	"github.com/taskhub/taskhub/internal/domain/user"
	"github.com/taskhub/taskhub/internal/http/middlewares"
	"github.com/taskhub/taskhub/internal/repo/postgres"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeTokenStore struct {
	rows    map[string]postgres.TokenRow
	touched []string
}

func (f *fakeTokenStore) GetByID(_ context.Context, id string) (postgres.TokenRow, error) {
	row, ok := f.rows[id]
	if !ok {
		return postgres.TokenRow{}, postgres.ErrTokenNotFound
	}
	return row, nil
}

func (f *fakeTokenStore) Touch(_ context.Context, id string) error {
	f.touched = append(f.touched, id)
	return nil
}

type fakeUserStore struct {
	users map[string]user.User
	calls int
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (user.User, error) {
	f.calls++
	u, ok := f.users[id]
	if !ok {
		return user.User{}, postgres.ErrUserNotFound
	}
	return u, nil
}

func authFixture(t *testing.T) (*gin.Engine, *fakeTokenStore, *fakeUserStore, string) {
	t.Helper()

	manager := auth.NewManager("test-secret")

	id, plain, err := manager.Mint()
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	owner := user.User{ID: "4f2b8a10-0000-4000-8000-000000000001", Name: "Alice", Email: "alice@example.com"}

	tokens := &fakeTokenStore{rows: map[string]postgres.TokenRow{
		id: {ID: id, UserID: owner.ID, TokenHash: manager.Hash(plain), CreatedAt: time.Now().UTC()},
	}}
	users := &fakeUserStore{users: map[string]user.User{owner.ID: owner}}

	mw := middlewares.NewAuthMiddleware(tokens, users, manager, cache.New(time.Minute))

	r := gin.New()
	r.GET("/whoami", mw.RequireAuth(), func(c *gin.Context) {
		u, ok := middlewares.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "no identity in context"})
			return
		}
		c.JSON(http.StatusOK, u)
	})

	return r, tokens, users, plain
}

func whoami(r http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	r, tokens, _, plain := authFixture(t)

	w := whoami(r, "Bearer "+plain)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if len(tokens.touched) != 1 {
		t.Fatalf("token not touched")
	}
}

func TestRequireAuthRejections(t *testing.T) {
	r, _, _, plain := authFixture(t)

	// a token minted under a different secret has the right shape but the
	// wrong hash
	_, otherPlain, err := auth.NewManager("other-secret").Mint()
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "wrong scheme", header: "Basic " + plain},
		{name: "empty bearer", header: "Bearer "},
		{name: "not id.secret shaped", header: "Bearer gibberish"},
		{name: "unknown token id", header: "Bearer " + otherPlain},
		{name: "tampered secret part", header: "Bearer " + plain + "x"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := whoami(r, tc.header)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401 (body %s)", w.Code, w.Body.String())
			}
			if w.Body.String() != `{"message":"Unauthenticated"}` {
				t.Fatalf("body = %s", w.Body.String())
			}
		})
	}
}

func TestRequireAuthRevokedToken(t *testing.T) {
	r, tokens, _, plain := authFixture(t)

	// first request succeeds
	if w := whoami(r, "Bearer "+plain); w.Code != http.StatusOK {
		t.Fatalf("status before revocation = %d", w.Code)
	}

	// revocation takes effect immediately, user caching notwithstanding
	for id := range tokens.rows {
		delete(tokens.rows, id)
	}

	if w := whoami(r, "Bearer "+plain); w.Code != http.StatusUnauthorized {
		t.Fatalf("status after revocation = %d, want 401", w.Code)
	}
}

func TestRequireAuthCachesUserLookups(t *testing.T) {
	r, _, users, plain := authFixture(t)

	for i := 0; i < 3; i++ {
		if w := whoami(r, "Bearer "+plain); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}

	if users.calls != 1 {
		t.Fatalf("user store hit %d times, want 1", users.calls)
	}
}
