package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestNewSSRFGuard はSSRFGuardの生成をテストする。
func TestNewSSRFGuard(t *testing.T) {
	guard := NewSSRFGuard()
	if guard == nil {
		t.Fatal("NewSSRFGuard() returned nil")
	}
}

// TestNewSafeClient はSSRF防止付きHTTPクライアントの生成をテストする。
func TestNewSafeClient(t *testing.T) {
	guard := NewSSRFGuard()
	client := guard.NewSafeClient(10 * time.Second)
	if client == nil {
		t.Fatal("NewSafeClient() returned nil")
	}
}

// TestNewSafeClientTimeout はタイムアウト設定が反映されることをテストする。
func TestNewSafeClientTimeout(t *testing.T) {
	guard := NewSSRFGuard()
	timeout := 5 * time.Second
	client := guard.NewSafeClient(timeout)
	if client.Timeout != timeout {
		t.Errorf("expected timeout %v, got %v", timeout, client.Timeout)
	}
}

// TestNewSafeClientHasTransport はSafeClientにカスタムTransportが設定されていることをテストする。
// safeurlはnet.DialerのControlフックでIPアドレス検証を行うため、
// Transportが標準のhttp.DefaultTransportではないことを確認する。
func TestNewSafeClientHasTransport(t *testing.T) {
	guard := NewSSRFGuard()
	client := guard.NewSafeClient(5 * time.Second)

	if client.Transport == nil {
		t.Fatal("expected custom Transport to be set, got nil")
	}
	if client.Transport == http.DefaultTransport {
		t.Fatal("expected custom Transport, got http.DefaultTransport")
	}
}

// TestNewSafeClientBlocksLoopback はSafeClientがループバックへのリクエストをブロックすることをテストする。
// httptestサーバーは127.0.0.1で起動されるため、safeurlがブロックする。
func TestNewSafeClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	guard := NewSSRFGuard()
	client := guard.NewSafeClient(5 * time.Second)

	_, err := client.Get(ts.URL)
	if err == nil {
		t.Fatal("expected error for loopback address request, got nil")
	}
}

// TestValidateURL_PublicURL は公開URLの検証が成功することをテストする。
func TestValidateURL_PublicURL(t *testing.T) {
	guard := NewSSRFGuard()

	publicURLs := []string{
		"https://t.me/i/userpic/320/abcdef.jpg",
		"https://cdn4.telegram-cdn.org/file/photo.jpg",
		"http://example.com/avatar.png",
	}

	for _, u := range publicURLs {
		t.Run(u, func(t *testing.T) {
			if err := guard.ValidateURL(u); err != nil {
				t.Errorf("ValidateURL(%q) = %v, want nil", u, err)
			}
		})
	}
}

// TestValidateURL_BlockedIP はプライベート・ループバック・メタデータIPが
// ブロックされることをテストする。
func TestValidateURL_BlockedIP(t *testing.T) {
	guard := NewSSRFGuard()

	blockedURLs := []string{
		"http://127.0.0.1/avatar.png",
		"http://10.0.0.5/photo.jpg",
		"http://172.16.1.1/photo.jpg",
		"http://192.168.1.1/photo.jpg",
		"http://169.254.169.254/latest/meta-data/",
		"http://0.0.0.0/",
		"http://[::1]/photo.jpg",
		"http://[fe80::1]/photo.jpg",
	}

	for _, u := range blockedURLs {
		t.Run(u, func(t *testing.T) {
			if err := guard.ValidateURL(u); err == nil {
				t.Errorf("ValidateURL(%q) = nil, want error", u)
			}
		})
	}
}

// TestValidateURL_BlockedHostname はlocalhost等の危険なホスト名が
// ブロックされることをテストする。
func TestValidateURL_BlockedHostname(t *testing.T) {
	guard := NewSSRFGuard()

	if err := guard.ValidateURL("http://localhost/photo.jpg"); err == nil {
		t.Error("ValidateURL(localhost) = nil, want error")
	}
	if err := guard.ValidateURL("http://LOCALHOST/photo.jpg"); err == nil {
		t.Error("ValidateURL(LOCALHOST) = nil, want error")
	}
}

// TestValidateURL_DisallowedScheme はhttp/https以外のスキームが
// 拒否されることをテストする。
func TestValidateURL_DisallowedScheme(t *testing.T) {
	guard := NewSSRFGuard()

	disallowed := []string{
		"ftp://example.com/photo.jpg",
		"file:///etc/passwd",
		"gopher://example.com/",
		"javascript:alert(1)",
	}

	for _, u := range disallowed {
		t.Run(u, func(t *testing.T) {
			if err := guard.ValidateURL(u); err == nil {
				t.Errorf("ValidateURL(%q) = nil, want error", u)
			}
		})
	}
}

// TestValidateURL_MalformedURL は不正なURLが拒否されることをテストする。
func TestValidateURL_MalformedURL(t *testing.T) {
	guard := NewSSRFGuard()

	malformed := []string{
		"",
		"://missing-scheme",
		"https://",
	}

	for _, u := range malformed {
		if err := guard.ValidateURL(u); err == nil {
			t.Errorf("ValidateURL(%q) = nil, want error", u)
		}
	}
}
