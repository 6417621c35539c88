package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// maxAvatarSize はアバター画像の最大サイズ（2MB）。
const maxAvatarSize = 2 * 1024 * 1024

// avatarTimeout はアバター取得のタイムアウト。
const avatarTimeout = 5 * time.Second

// SSRFValidator はアバター取得前のURL検証インターフェース。
// security.SSRFGuardServiceの部分集合として定義する。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// AvatarFetcherService はアバター画像取得のインターフェース。
type AvatarFetcherService interface {
	// FetchAvatar は指定URLからアバター画像を取得する。
	// 取得失敗時はnilデータと空MIMEを返す（エラーは返さない）。
	FetchAvatar(ctx context.Context, photoURL string) (data []byte, mimeType string, err error)
}

// AvatarFetcher はアバター画像取得機能の実装。
// photo_urlはクレーム経由で外部から与えられるため、
// SSRF検証とsafeurlクライアント経由での取得を必須とする。
type AvatarFetcher struct {
	ssrfGuard SSRFValidator
}

// NewAvatarFetcher はAvatarFetcherの新しいインスタンスを生成する。
func NewAvatarFetcher(ssrfGuard SSRFValidator) *AvatarFetcher {
	return &AvatarFetcher{
		ssrfGuard: ssrfGuard,
	}
}

// FetchAvatar は指定URLからアバター画像を取得する。
// 取得はベストエフォートで、失敗してもログイン処理は継続する。
func (f *AvatarFetcher) FetchAvatar(ctx context.Context, photoURL string) ([]byte, string, error) {
	if photoURL == "" {
		return nil, "", nil
	}

	// SSRF検証
	if err := f.ssrfGuard.ValidateURL(photoURL); err != nil {
		slog.Warn("avatar fetch blocked by ssrf guard", "url", photoURL, "error", err)
		return nil, "", nil
	}

	client := f.ssrfGuard.NewSafeClient(avatarTimeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photoURL, nil)
	if err != nil {
		slog.Warn("avatar fetch: failed to create request", "url", photoURL, "error", err)
		return nil, "", nil
	}
	req.Header.Set("User-Agent", "Minipay/1.0")

	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("avatar fetch: request failed", "url", photoURL, "error", err)
		return nil, "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("avatar fetch: unexpected status", "url", photoURL, "status", resp.StatusCode)
		return nil, "", nil
	}

	// レスポンスボディを読み込み（最大2MB）
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAvatarSize+1))
	if err != nil {
		slog.Warn("avatar fetch: failed to read response", "url", photoURL, "error", err)
		return nil, "", nil
	}
	if int64(len(body)) > maxAvatarSize {
		slog.Warn("avatar fetch: size exceeded", "url", photoURL, "size", len(body))
		return nil, "", nil
	}

	mimeType := extractMimeType(resp.Header.Get("Content-Type"))
	if !isImageMime(mimeType) {
		slog.Warn("avatar fetch: non-image content type", "url", photoURL, "contentType", mimeType)
		return nil, "", nil
	}

	return body, mimeType, nil
}

// extractMimeType はContent-Typeヘッダーからメディアタイプ部分を取り出す。
func extractMimeType(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(strings.ToLower(contentType))
}

// isImageMime はMIMEタイプが画像かを判定する。
func isImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// compile-time interface check
var _ AvatarFetcherService = (*AvatarFetcher)(nil)
