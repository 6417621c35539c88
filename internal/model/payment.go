// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus は入金セッションの状態を表す。
// initiated → completed または initiated → failed の一方向にのみ遷移し、
// 終端状態（completed / failed）に達した後は二度と変化しない。
type PaymentStatus string

const (
	// PaymentStatusInitiated はゲートウェイでチェックアウトを作成済みの初期状態。
	PaymentStatusInitiated PaymentStatus = "initiated"
	// PaymentStatusCompleted はexecute呼び出しで入金完了が確認された終端状態。
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed は入金が成立しなかった終端状態。
	PaymentStatusFailed PaymentStatus = "failed"
)

// IsTerminal は終端状態（これ以上遷移しない状態）かどうかを返す。
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// FailureReason はfailed遷移の理由区分を表す。
// 単一のfailedバケツに全失敗を畳み込まず、原因を記録として残す。
type FailureReason string

const (
	// FailureReasonCallbackReported はコールバックが成功以外を報告した場合。
	FailureReasonCallbackReported FailureReason = "callback_reported_failure"
	// FailureReasonExecuteDeclined はexecuteが完了以外の確定ステータスを返した場合。
	FailureReasonExecuteDeclined FailureReason = "execute_declined"
)

// PaymentSession はゲートウェイとの入金セッションを表す。
// IDはゲートウェイが発行したpaymentIDで、発行後は不変。
// レコードは追記専用で削除されない（入金完了の正とするため）。
type PaymentSession struct {
	ID            string // ゲートウェイ発行のpaymentID
	UserID        string
	Amount        decimal.Decimal
	Currency      string
	InvoiceNumber string
	Status        PaymentStatus
	FailureReason FailureReason // failedの場合のみ設定
	TrxID         string        // executeが返す取引ID（completedの場合のみ設定）
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MinDepositAmount は入金の最小額（10 BDT）。
// これ未満の額はゲートウェイに問い合わせる前に拒否する。
var MinDepositAmount = decimal.NewFromInt(10)

// LedgerEntry は入金完了時に記帳される台帳エントリを表す。
// PaymentIDにUNIQUE制約があり、同一入金の二重記帳をDBレベルで防ぐ。
type LedgerEntry struct {
	ID        string
	UserID    string
	PaymentID string
	Amount    decimal.Decimal
	CreatedAt time.Time
}
