package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     rate.Limit(10),
		GeneralBurst:    5,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/feeds", nil)
		req.RemoteAddr = "192.0.2.1:12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("バースト内のリクエスト%dが拒否された: %d", i+1, w.Code)
		}
	}
}

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     rate.Limit(0.01), // 補充がほぼ発生しないレート
		GeneralBurst:    2,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	var lastCode int
	var retryAfter string
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/feeds", nil)
		req.RemoteAddr = "192.0.2.1:12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		lastCode = w.Code
		retryAfter = w.Header().Get("Retry-After")
	}

	if lastCode != http.StatusTooManyRequests {
		t.Errorf("バースト超過は429になるべき: %d", lastCode)
	}
	if retryAfter == "" {
		t.Error("Retry-Afterヘッダーが設定されるべき")
	}
}

func TestRateLimiter_SeparateLimitsPerIP(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:     rate.Limit(0.01),
		GeneralBurst:    1,
		CleanupInterval: time.Minute,
	})
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	// IP-1がバーストを使い切る
	req1 := httptest.NewRequest(http.MethodGet, "/", nil)
	req1.RemoteAddr = "192.0.2.1:1111"
	handler.ServeHTTP(httptest.NewRecorder(), req1)

	req1b := httptest.NewRequest(http.MethodGet, "/", nil)
	req1b.RemoteAddr = "192.0.2.1:2222"
	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, req1b)
	if w1.Code != http.StatusTooManyRequests {
		t.Errorf("同一IPの超過リクエストは拒否されるべき: %d", w1.Code)
	}

	// 別IPは影響を受けない
	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.RemoteAddr = "192.0.2.2:3333"
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req2)
	if w2.Code != http.StatusOK {
		t.Errorf("別IPのリクエストは許可されるべき: %d", w2.Code)
	}

	if rl.LimiterCount() != 2 {
		t.Errorf("リミッターは2エントリのはず: %d", rl.LimiterCount())
	}
}

func TestNewRateLimiterConfig(t *testing.T) {
	cfg := NewRateLimiterConfig(120)

	if cfg.GeneralRate != rate.Limit(2.0) {
		t.Errorf("GeneralRate = %v, want 2", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %v, want 120", cfg.GeneralBurst)
	}
}
