// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, payment, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidAmount      = "INVALID_AMOUNT"
	ErrCodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
	ErrCodePaymentNotFound    = "PAYMENT_NOT_FOUND"
	ErrCodeInvalidSignature   = "INVALID_SIGNATURE"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
)

// NewInvalidAmountError は入金額が不正な場合のエラーを生成する。
// リトライ可能: ユーザーが金額を修正して再送すればよい。
func NewInvalidAmountError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAmount,
		Message:  fmt.Sprintf("無効な入金額です: %s", reason),
		Category: "validation",
		Action:   "10 BDT以上の数値を入力してください。",
	}
}

// NewGatewayUnavailableError はゲートウェイ呼び出し失敗のエラーを生成する。
// リトライ可能: 操作全体をやり直せる。認証情報等の内部詳細は含めない。
func NewGatewayUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeGatewayUnavailable,
		Message:  "決済ゲートウェイに接続できませんでした。",
		Category: "payment",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewPaymentNotFoundError は入金セッションが見つからない場合のエラーを生成する。
// 同一入力でのリトライは不可。
func NewPaymentNotFoundError(paymentID string) *APIError {
	return &APIError{
		Code:     ErrCodePaymentNotFound,
		Message:  fmt.Sprintf("指定された入金セッションが見つかりません: %s", paymentID),
		Category: "payment",
		Action:   "paymentIDを確認してください。",
	}
}

// NewInvalidSignatureError は署名検証に失敗したIDクレームのエラーを生成する。
// 認証済みとして扱ってはならない。
func NewInvalidSignatureError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSignature,
		Message:  "Telegramの認証データを検証できませんでした。",
		Category: "auth",
		Action:   "Telegramからログインし直してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
