// Package auth はTelegram認証フロー、セッション管理を提供する。
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// 署名検証の失敗理由。クレームはVerify*が成功した場合のみ信用できる。
var (
	// ErrInvalidSignature は署名がクレーム内容と一致しない場合のエラー。
	ErrInvalidSignature = errors.New("telegram claim signature mismatch")
	// ErrMissingHash はクレームにhashフィールドが存在しない場合のエラー。
	ErrMissingHash = errors.New("telegram claim has no hash field")
	// ErrClaimExpired はauth_dateが許容期間より古い場合のエラー。
	ErrClaimExpired = errors.New("telegram claim auth_date too old")
)

// webAppKeySeed はWebApp initData検証の鍵導出に使う定数文字列。
// Telegram Bot API仕様で固定されている。
const webAppKeySeed = "WebAppData"

// Verifier はTelegramが署名したIDクレームの検証器。
// ログインウィジェット形式とWebApp initData形式の両方に対応する。
type Verifier struct {
	botToken string
	maxAge   time.Duration // 0の場合はauth_dateの鮮度チェックを行わない

	// テスト用にオーバーライド可能な現在時刻
	now func() time.Time
}

// NewVerifier はVerifierを生成する。
// maxAgeはauth_dateの許容期間。0を指定すると鮮度チェックを無効化する。
func NewVerifier(botToken string, maxAge time.Duration) *Verifier {
	return &Verifier{
		botToken: botToken,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// VerifyLoginWidget はログインウィジェット形式のクレームを検証する。
//
// 検証手順:
//  1. hashフィールドを除外する
//  2. 残りのフィールド名を辞書順にソートする
//  3. "{field}={value}" を改行で連結してチェック文字列を作る
//  4. 署名鍵 = SHA-256(botToken) の生ダイジェスト
//  5. チェック文字列のHMAC-SHA256をhexエンコードし、hashと定数時間比較する
//
// 検証成功後にauth_dateの鮮度を確認する。
func (v *Verifier) VerifyLoginWidget(claim map[string]string) error {
	expected, ok := claim["hash"]
	if !ok || expected == "" {
		return ErrMissingHash
	}

	key := sha256.Sum256([]byte(v.botToken))
	computed := computeHMAC(key[:], buildCheckString(claim))

	// 定数時間比較でタイミングサイドチャネルを避ける
	if !hmac.Equal([]byte(computed), []byte(expected)) {
		return ErrInvalidSignature
	}

	return v.checkFreshness(claim["auth_date"])
}

// VerifyWebAppInitData はWebAppのinitData（URLエンコード文字列）を検証し、
// 検証済みのフィールドマップを返す。
// チェック文字列の構築はログインウィジェットと同一だが、
// 署名鍵 = HMAC-SHA256(key="WebAppData", message=botToken) である点が異なる。
func (v *Verifier) VerifyWebAppInitData(initData string) (map[string]string, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse init data: %w", err)
	}

	claim := make(map[string]string, len(values))
	for k := range values {
		claim[k] = values.Get(k)
	}

	expected, ok := claim["hash"]
	if !ok || expected == "" {
		return nil, ErrMissingHash
	}

	key := computeHMACRaw([]byte(webAppKeySeed), v.botToken)
	computed := computeHMAC(key, buildCheckString(claim))

	if !hmac.Equal([]byte(computed), []byte(expected)) {
		return nil, ErrInvalidSignature
	}

	if err := v.checkFreshness(claim["auth_date"]); err != nil {
		return nil, err
	}

	return claim, nil
}

// checkFreshness はauth_dateが許容期間内かを確認する。
func (v *Verifier) checkFreshness(authDate string) error {
	if v.maxAge <= 0 {
		return nil
	}
	if authDate == "" {
		return ErrClaimExpired
	}

	unix, err := strconv.ParseInt(authDate, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid auth_date: %w", err)
	}

	issued := time.Unix(unix, 0)
	if v.now().Sub(issued) > v.maxAge {
		return ErrClaimExpired
	}
	return nil
}

// buildCheckString はhashを除くフィールドを辞書順に"k=v"形式で改行連結する。
func buildCheckString(claim map[string]string) string {
	keys := make([]string, 0, len(claim))
	for k := range claim {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+claim[k])
	}
	return strings.Join(pairs, "\n")
}

// computeHMAC はHMAC-SHA256のhexダイジェストを返す。
func computeHMAC(key []byte, message string) string {
	return hex.EncodeToString(computeHMACRaw(key, message))
}

// computeHMACRaw はHMAC-SHA256の生ダイジェストを返す。
func computeHMACRaw(key []byte, message string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return mac.Sum(nil)
}
