package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ukombozini/fieldsync/internal/storage/memory"
	"github.com/ukombozini/fieldsync/internal/syncx"
)

const testSecret = "test-hmac-secret"

func signHS256(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

// protectedProbe wraps the middleware around a handler that records the
// authenticated user ID resolved from the request context.
func protectedProbe(cfg JWTCfg) (http.Handler, *string) {
	db := memory.NewDB(syncx.SystemClock())
	var gotUserID string
	h := Middleware(db.Users(), cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return h, &gotUserID
}

func TestMiddleware_ValidToken(t *testing.T) {
	h, gotUserID := protectedProbe(JWTCfg{HS256Secret: testSecret})

	tok := signHS256(t, jwt.MapClaims{
		"sub": "officer_001",
		"exp": time.Now().Add(1 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}, testSecret)

	req := httptest.NewRequest(http.MethodPost, "/v1/sync/pull", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if *gotUserID == "" {
		t.Error("expected user ID in request context, got empty string")
	}
}

func TestMiddleware_StableUserID(t *testing.T) {
	db := memory.NewDB(syncx.SystemClock())
	var seen []string
	h := Middleware(db.Users(), JWTCfg{HS256Secret: testSecret})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, UserID(r.Context()))
	}))

	tok := signHS256(t, jwt.MapClaims{
		"sub": "officer_001",
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	}, testSecret)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/sync/sessions", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	if len(seen) != 2 {
		t.Fatalf("expected 2 authenticated requests, got %d", len(seen))
	}
	if seen[0] != seen[1] {
		t.Errorf("same subject resolved to different user IDs: %q vs %q", seen[0], seen[1])
	}
}

func TestMiddleware_InvalidSignature(t *testing.T) {
	h, _ := protectedProbe(JWTCfg{HS256Secret: testSecret})

	tok := signHS256(t, jwt.MapClaims{
		"sub": "officer_001",
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	}, "wrong-secret")

	req := httptest.NewRequest(http.MethodPost, "/v1/sync/pull", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rw.Code)
	}
}

func TestMiddleware_ExpiredToken(t *testing.T) {
	h, _ := protectedProbe(JWTCfg{HS256Secret: testSecret})

	tok := signHS256(t, jwt.MapClaims{
		"sub": "officer_001",
		"exp": time.Now().Add(-1 * time.Hour).Unix(),
		"iat": time.Now().Add(-2 * time.Hour).Unix(),
	}, testSecret)

	req := httptest.NewRequest(http.MethodPost, "/v1/sync/pull", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", rw.Code)
	}
}

func TestMiddleware_MissingSubClaim(t *testing.T) {
	h, _ := protectedProbe(JWTCfg{HS256Secret: testSecret})

	tok := signHS256(t, jwt.MapClaims{
		"exp": time.Now().Add(1 * time.Hour).Unix(),
	}, testSecret)

	req := httptest.NewRequest(http.MethodPost, "/v1/sync/pull", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for token without sub, got %d", rw.Code)
	}
}

func TestMiddleware_NoCredentials(t *testing.T) {
	h, _ := protectedProbe(JWTCfg{HS256Secret: testSecret})

	req := httptest.NewRequest(http.MethodPost, "/v1/sync/pull", nil)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rw.Code)
	}
}

func TestMiddleware_DebugSubRequiresDevMode(t *testing.T) {
	// X-Debug-Sub must be ignored unless DevMode is explicitly enabled.
	h, _ := protectedProbe(JWTCfg{HS256Secret: testSecret, DevMode: false})

	req := httptest.NewRequest(http.MethodPost, "/v1/sync/pull", nil)
	req.Header.Set("X-Debug-Sub", "officer_001")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for X-Debug-Sub in production mode, got %d", rw.Code)
	}
}

func TestMiddleware_DebugSubInDevMode(t *testing.T) {
	h, gotUserID := protectedProbe(JWTCfg{HS256Secret: testSecret, DevMode: true})

	req := httptest.NewRequest(http.MethodPost, "/v1/sync/pull", nil)
	req.Header.Set("X-Debug-Sub", "officer_001")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200 in dev mode, got %d", rw.Code)
	}
	if *gotUserID == "" {
		t.Error("expected user ID in request context, got empty string")
	}
}

func TestMiddleware_BearerTakesPrecedenceOverDebugSub(t *testing.T) {
	// A present Bearer token is always validated, even in dev mode.
	h, _ := protectedProbe(JWTCfg{HS256Secret: testSecret, DevMode: true})

	tok := signHS256(t, jwt.MapClaims{
		"sub": "officer_001",
		"exp": time.Now().Add(-1 * time.Hour).Unix(),
	}, testSecret)

	req := httptest.NewRequest(http.MethodPost, "/v1/sync/pull", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("X-Debug-Sub", "someone_else")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid bearer token despite X-Debug-Sub, got %d", rw.Code)
	}
}
