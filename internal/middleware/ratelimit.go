package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定。
type RateLimiterConfig struct {
	// GeneralRate は一般APIの秒間リクエスト許容数。
	GeneralRate rate.Limit
	// GeneralBurst は一般APIのバースト許容数。
	GeneralBurst int
	// DepositRate は入金作成APIの秒間リクエスト許容数。
	DepositRate rate.Limit
	// DepositBurst は入金作成APIのバースト許容数。
	DepositBurst int
	// CleanupInterval は未使用リミッターの掃除間隔。
	CleanupInterval time.Duration
}

// DefaultRateLimiterConfig は分あたりのリクエスト数からデフォルト設定を生成する。
func DefaultRateLimiterConfig(generalPerMinute, depositPerMinute int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(generalPerMinute) / 60.0),
		GeneralBurst:    generalPerMinute,
		DepositRate:     rate.Limit(float64(depositPerMinute) / 60.0),
		DepositBurst:    depositPerMinute,
		CleanupInterval: 10 * time.Minute,
	}
}

// userLimiter はユーザーごとのリミッターと最終アクセス時刻を保持する。
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はユーザーIDごとのトークンバケットレート制限を提供する。
// 一般APIと入金作成APIで独立した制限を持つ。
type RateLimiter struct {
	config RateLimiterConfig

	mu              sync.RWMutex
	generalLimiters map[string]*userLimiter
	depositLimiters map[string]*userLimiter

	stopCh chan struct{}
}

// NewRateLimiter はレートリミッターを生成し、掃除ゴルーチンを起動する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:          config,
		generalLimiters: make(map[string]*userLimiter),
		depositLimiters: make(map[string]*userLimiter),
		stopCh:          make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop は掃除ゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware は一般APIエンドポイント向けのレート制限ミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				// セッションミドルウェア通過後に配置される前提
				next.ServeHTTP(w, r)
				return
			}

			limiter := rl.getOrCreateGeneral(userID)
			if !limiter.Allow() {
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", "general"),
					slog.String("path", r.URL.Path),
				)
				writeRateLimitResponse(w, rl.config.GeneralRate)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// DepositMiddleware は入金セッション作成エンドポイント向けの厳格なレート制限ミドルウェアを返す。
// 決済ゲートウェイへの呼び出しを伴うため、一般APIより低いレートを適用する。
func (rl *RateLimiter) DepositMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			limiter := rl.getOrCreateDeposit(userID)
			if !limiter.Allow() {
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", "deposit"),
					slog.String("path", r.URL.Path),
				)
				writeRateLimitResponse(w, rl.config.DepositRate)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getOrCreateGeneral は一般API用のリミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateGeneral(userID string) *rate.Limiter {
	rl.mu.RLock()
	ul, ok := rl.generalLimiters[userID]
	rl.mu.RUnlock()
	if ok {
		rl.mu.Lock()
		ul.lastAccess = time.Now()
		rl.mu.Unlock()
		return ul.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	// 二重チェック
	if ul, ok := rl.generalLimiters[userID]; ok {
		ul.lastAccess = time.Now()
		return ul.limiter
	}
	ul = &userLimiter{
		limiter:    rate.NewLimiter(rl.config.GeneralRate, rl.config.GeneralBurst),
		lastAccess: time.Now(),
	}
	rl.generalLimiters[userID] = ul
	return ul.limiter
}

// getOrCreateDeposit は入金作成API用のリミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateDeposit(userID string) *rate.Limiter {
	rl.mu.RLock()
	ul, ok := rl.depositLimiters[userID]
	rl.mu.RUnlock()
	if ok {
		rl.mu.Lock()
		ul.lastAccess = time.Now()
		rl.mu.Unlock()
		return ul.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if ul, ok := rl.depositLimiters[userID]; ok {
		ul.lastAccess = time.Now()
		return ul.limiter
	}
	ul = &userLimiter{
		limiter:    rate.NewLimiter(rl.config.DepositRate, rl.config.DepositBurst),
		lastAccess: time.Now(),
	}
	rl.depositLimiters[userID] = ul
	return ul.limiter
}

// cleanupLoop は定期的に未使用のリミッターを削除する。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は掃除間隔の2倍を超えてアクセスのないリミッターを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	cutoff := time.Now().Add(-ttl)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for userID, ul := range rl.generalLimiters {
		if ul.lastAccess.Before(cutoff) {
			delete(rl.generalLimiters, userID)
		}
	}
	for userID, ul := range rl.depositLimiters {
		if ul.lastAccess.Before(cutoff) {
			delete(rl.depositLimiters, userID)
		}
	}
}

// writeRateLimitResponse は429レスポンスをRetry-Afterヘッダー付きで書き込む。
func writeRateLimitResponse(w http.ResponseWriter, limit rate.Limit) {
	retryAfter := 1
	if limit > 0 {
		retryAfter = int(math.Ceil(1.0 / float64(limit)))
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]string{
		"code":    "rate_limit_exceeded",
		"message": "リクエストが多すぎます。しばらく待ってから再度お試しください。",
	})
}
