// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/minipay/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateProfile はTelegramクレーム由来のプロフィール項目を更新する。
	UpdateProfile(ctx context.Context, user *model.User) error

	// UpdateAvatar は取得済みアバター画像を更新する。
	UpdateAvatar(ctx context.Context, userID string, data []byte, mime string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はログインセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// PaymentSessionRepository は入金セッションの永続化インターフェース。
// レコードは追記専用で、削除操作は提供しない。
// 状態遷移はinitiatedからの一方向のみで、遷移系の操作はすべて
// `WHERE status = 'initiated'` のガード付きUPDATEとして実装される。
type PaymentSessionRepository interface {
	// Create は入金セッションをinitiatedで作成する。
	Create(ctx context.Context, session *model.PaymentSession) error

	// FindByID は指定IDの入金セッションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.PaymentSession, error)

	// ListByUserID はユーザーの入金セッションを作成順（古い順）で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.PaymentSession, error)

	// MarkFailed はinitiatedのセッションをfailedに遷移させる。
	// 遷移が適用された場合はtrueを返す。すでに終端状態の場合はfalseを返し、
	// 何も変更しない（冪等）。
	MarkFailed(ctx context.Context, id string, reason model.FailureReason) (bool, error)

	// CompleteAndCredit はinitiatedのセッションをcompletedに遷移させ、
	// 同一トランザクションで台帳に記帳する。遷移が適用された場合はtrueを
	// 返す。すでに終端状態の場合はfalseを返し、記帳も行わない。
	// ledger_entries.payment_idのUNIQUE制約が二重記帳の最終防壁となる。
	CompleteAndCredit(ctx context.Context, id, trxID string, entry *model.LedgerEntry) (bool, error)
}
