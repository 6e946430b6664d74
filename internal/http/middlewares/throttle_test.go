package middlewares_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taskhub/taskhub/internal/http/middlewares"
)

func throttledRouter(limit int, window time.Duration) *gin.Engine {
	r := gin.New()

	// nil redis client exercises the in-process fallback window
	th := middlewares.NewThrottle(limit, window, nil)

	r.POST("/login", th.Limit(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	r.POST("/register", th.Limit(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	return r
}

func hit(r http.Handler, path, ip string) int {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	req.RemoteAddr = ip + ":54321"

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w.Code
}

func TestThrottleLimitsWithinWindow(t *testing.T) {
	r := throttledRouter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if code := hit(r, "/login", "10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, code)
		}
	}

	if code := hit(r, "/login", "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("over-limit request: status = %d, want 429", code)
	}
}

func TestThrottleKeysByPathAndClient(t *testing.T) {
	r := throttledRouter(1, time.Minute)

	if code := hit(r, "/login", "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("first login: %d", code)
	}
	if code := hit(r, "/login", "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("second login from same client: %d, want 429", code)
	}

	// a different endpoint and a different client each get their own window
	if code := hit(r, "/register", "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("register from throttled client: %d, want 200", code)
	}
	if code := hit(r, "/login", "10.0.0.2"); code != http.StatusOK {
		t.Fatalf("login from other client: %d, want 200", code)
	}
}

func TestThrottleWindowExpires(t *testing.T) {
	r := throttledRouter(1, 30*time.Millisecond)

	if code := hit(r, "/login", "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	if code := hit(r, "/login", "10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d, want 429", code)
	}

	time.Sleep(40 * time.Millisecond)

	if code := hit(r, "/login", "10.0.0.1"); code != http.StatusOK {
		t.Fatalf("request after window reset: %d, want 200", code)
	}
}
