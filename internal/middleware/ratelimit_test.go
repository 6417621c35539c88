package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newTestRateLimiter(depositRate rate.Limit, depositBurst int) *RateLimiter {
	return NewRateLimiter(RateLimiterConfig{
		GeneralRate:     rate.Limit(100),
		GeneralBurst:    100,
		DepositRate:     depositRate,
		DepositBurst:    depositBurst,
		CleanupInterval: time.Minute,
	})
}

func serveWithUser(handler http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/payments", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), userID))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestDepositMiddleware_EnforcesBurst(t *testing.T) {
	rl := newTestRateLimiter(rate.Limit(1.0/60.0), 2)
	defer rl.Stop()

	handler := rl.DepositMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	// バースト分は通る
	for i := 0; i < 2; i++ {
		if got := serveWithUser(handler, "user-1").Result().StatusCode; got != http.StatusCreated {
			t.Fatalf("request %d: status = %d, want %d", i, got, http.StatusCreated)
		}
	}

	// バーストを超えると429
	resp := serveWithUser(handler, "user-1").Result()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTooManyRequests)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header on 429")
	}
}

func TestDepositMiddleware_LimitsArePerUser(t *testing.T) {
	rl := newTestRateLimiter(rate.Limit(1.0/60.0), 1)
	defer rl.Stop()

	handler := rl.DepositMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	// user-1のバーストを使い切る
	serveWithUser(handler, "user-1")
	if got := serveWithUser(handler, "user-1").Result().StatusCode; got != http.StatusTooManyRequests {
		t.Fatalf("user-1 second request: status = %d, want 429", got)
	}

	// user-2には影響しない
	if got := serveWithUser(handler, "user-2").Result().StatusCode; got != http.StatusCreated {
		t.Errorf("user-2 first request: status = %d, want %d", got, http.StatusCreated)
	}
}

func TestGeneralMiddleware_IndependentFromDepositLimit(t *testing.T) {
	rl := newTestRateLimiter(rate.Limit(1.0/60.0), 1)
	defer rl.Stop()

	depositHandler := rl.DepositMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	generalHandler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// 入金作成の制限を使い切っても一般APIは通る
	serveWithUser(depositHandler, "user-1")
	serveWithUser(depositHandler, "user-1")

	if got := serveWithUser(generalHandler, "user-1").Result().StatusCode; got != http.StatusOK {
		t.Errorf("general request: status = %d, want %d", got, http.StatusOK)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := newTestRateLimiter(rate.Limit(1), 1)
	defer rl.Stop()

	handler := rl.DepositMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serveWithUser(handler, "user-1")

	// 最終アクセスをTTLより過去に偽装
	rl.mu.Lock()
	rl.depositLimiters["user-1"].lastAccess = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.cleanup()

	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if _, ok := rl.depositLimiters["user-1"]; ok {
		t.Error("stale limiter must be removed by cleanup")
	}
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig(120, 10)

	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.DepositBurst != 10 {
		t.Errorf("DepositBurst = %d, want 10", cfg.DepositBurst)
	}
	if cfg.DepositRate >= cfg.GeneralRate {
		t.Error("deposit rate must be stricter than general rate")
	}
}
