// Package payment は入金セッションのライフサイクル管理を提供する。
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/minipay/internal/gateway"
	"github.com/hitoshi/minipay/internal/model"
	"github.com/hitoshi/minipay/internal/repository"
	"github.com/shopspring/decimal"
)

// Gateway は決済ゲートウェイ操作のインターフェース。
// gateway.Clientの部分集合として定義し、テストではモックに差し替える。
type Gateway interface {
	GrantToken(ctx context.Context) (string, error)
	CreatePayment(ctx context.Context, token string, req gateway.CreateRequest) (*gateway.CreateResponse, error)
	ExecutePayment(ctx context.Context, token, paymentID string) (*gateway.ExecuteResponse, error)
}

// MetricsRecorder は入金関連メトリクスの記録インターフェース。
// internal/metricsのCollectorの部分集合として定義する。
type MetricsRecorder interface {
	RecordDepositCreated()
	RecordDepositCompleted()
	RecordDepositFailed(reason string)
	RecordLedgerCredited()
}

// ServiceConfig は入金サービスの設定。
type ServiceConfig struct {
	CallbackURL string // ゲートウェイに通知するコールバックURL
	Currency    string
}

// Service は入金セッションの作成と照会を提供する。
type Service struct {
	repo    repository.PaymentSessionRepository
	gw      Gateway
	metrics MetricsRecorder
	config  ServiceConfig
}

// NewService はServiceを生成する。metricsはnil可。
func NewService(repo repository.PaymentSessionRepository, gw Gateway, metrics MetricsRecorder, config ServiceConfig) *Service {
	return &Service{
		repo:    repo,
		gw:      gw,
		metrics: metrics,
		config:  config,
	}
}

// CreateDeposit は入金セッションを作成する。
//
// 金額の検証はゲートウェイ接続より先に行い、最小額（10）未満は
// InvalidAmountで即座に拒否する。ゲートウェイへの認証は毎回行う
// （bearerトークンはキャッシュしない）。
//
// ローカルレコードはゲートウェイでの作成成功後にのみ永続化されるため、
// ゲートウェイ障害時に中途半端なレコードが残ることはない。
// 戻り値のRawレスポンスはホストされたチェックアウトUIの起動に必要な
// フィールドをフロントエンドへそのまま渡すためのもの。
func (s *Service) CreateDeposit(ctx context.Context, userID string, amount decimal.Decimal) (*model.PaymentSession, json.RawMessage, error) {
	if amount.LessThan(model.MinDepositAmount) {
		return nil, nil, model.NewInvalidAmountError(fmt.Sprintf("%s is below the minimum of %s", amount, model.MinDepositAmount))
	}

	token, err := s.gw.GrantToken(ctx)
	if err != nil {
		slog.Error("token grant failed", slog.String("error", err.Error()))
		return nil, nil, model.NewGatewayUnavailableError()
	}

	invoiceNumber := newInvoiceNumber()
	createReq := gateway.NewCreateRequest(userID, s.config.CallbackURL, amount, s.config.Currency, invoiceNumber)

	createResp, err := s.gw.CreatePayment(ctx, token, createReq)
	if err != nil {
		slog.Error("checkout create failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, nil, model.NewGatewayUnavailableError()
	}

	now := time.Now()
	session := &model.PaymentSession{
		ID:            createResp.PaymentID,
		UserID:        userID,
		Amount:        amount,
		Currency:      s.config.Currency,
		InvoiceNumber: invoiceNumber,
		Status:        model.PaymentStatusInitiated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("failed to persist payment session: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordDepositCreated()
	}

	slog.Info("deposit initiated",
		slog.String("payment_id", session.ID),
		slog.String("user_id", userID),
		slog.String("amount", amount.StringFixed(2)),
	)

	return session, createResp.Raw, nil
}

// GetSession は指定IDの入金セッションを返す。副作用はない。
func (s *Service) GetSession(ctx context.Context, paymentID string) (*model.PaymentSession, error) {
	session, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to find payment session: %w", err)
	}
	if session == nil {
		return nil, model.NewPaymentNotFoundError(paymentID)
	}
	return session, nil
}

// ListSessions はユーザーの全入金セッションを作成順で返す。
// 履歴・監査用であり、正否判断には使わない。
func (s *Service) ListSessions(ctx context.Context, userID string) ([]*model.PaymentSession, error) {
	sessions, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment sessions: %w", err)
	}
	return sessions, nil
}

// newInvoiceNumber はリクエストごとに一意なインボイス番号を生成する。
// 形式よりも一意性を優先し、時刻とランダム成分を組み合わせる。
func newInvoiceNumber() string {
	return fmt.Sprintf("INV-%d-%s", time.Now().UnixMilli(), uuid.New().String()[:8])
}
