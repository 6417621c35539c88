package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/minipay/internal/gateway"
	"github.com/hitoshi/minipay/internal/model"
	"github.com/hitoshi/minipay/internal/repository"
)

// CallbackStatusSuccess はゲートウェイのリダイレクトが成功を報告する値。
// あくまでヒントであり、入金成立の根拠はexecute呼び出しの結果のみ。
const CallbackStatusSuccess = "success"

// Reconciler はゲートウェイからのコールバックを検証し、
// 入金セッションの最終状態への遷移を冪等に適用する。
type Reconciler struct {
	repo    repository.PaymentSessionRepository
	gw      Gateway
	metrics MetricsRecorder
	locks   *keyedMutex
}

// NewReconciler はReconcilerを生成する。metricsはnil可。
func NewReconciler(repo repository.PaymentSessionRepository, gw Gateway, metrics MetricsRecorder) *Reconciler {
	return &Reconciler{
		repo:    repo,
		gw:      gw,
		metrics: metrics,
		locks:   newKeyedMutex(),
	}
}

// HandleCallback はコールバックを処理する。
//
// 処理内容:
//   - 未知のpaymentIDはNotFoundで拒否する（黙認しない）
//   - すでに終端状態のセッションはno-op（冪等: 台帳への二重記帳は起きない）
//   - 成功以外の報告は即座にfailedへ遷移させる（ゲートウェイ呼び出し不要)
//   - 成功報告はヒントとして扱い、再認証の上でexecuteを呼び、その結果が
//     "Completed" の場合のみcompletedへ遷移させ台帳に記帳する
//   - executeが完了以外の確定ステータスを返した場合はfailedへ遷移させる
//   - grant/executeのネットワーク・一時障害時は状態を変更せず
//     GatewayUnavailableを返す（コールバックの再送で再処理できる）
//
// 同一paymentIDへの並行呼び出しはキー単位ロックで直列化される。
func (r *Reconciler) HandleCallback(ctx context.Context, paymentID, reportedStatus string) error {
	r.locks.Lock(paymentID)
	defer r.locks.Unlock(paymentID)

	session, err := r.repo.FindByID(ctx, paymentID)
	if err != nil {
		return err
	}
	if session == nil {
		slog.Warn("callback for unknown payment session", slog.String("payment_id", paymentID))
		return model.NewPaymentNotFoundError(paymentID)
	}

	if session.Status.IsTerminal() {
		slog.Info("callback for terminal payment session ignored",
			slog.String("payment_id", paymentID),
			slog.String("status", string(session.Status)),
		)
		return nil
	}

	if reportedStatus != CallbackStatusSuccess {
		return r.markFailed(ctx, session, model.FailureReasonCallbackReported)
	}

	// 成功報告はヒントに過ぎない。確定結果はexecuteで取得する。
	token, err := r.gw.GrantToken(ctx)
	if err != nil {
		slog.Error("token grant failed during callback",
			slog.String("payment_id", paymentID),
			slog.String("error", err.Error()),
		)
		return model.NewGatewayUnavailableError()
	}

	execResp, err := r.gw.ExecutePayment(ctx, token, paymentID)
	if err != nil {
		slog.Error("checkout execute failed",
			slog.String("payment_id", paymentID),
			slog.String("error", err.Error()),
		)
		return model.NewGatewayUnavailableError()
	}

	if execResp.TransactionStatus != gateway.TransactionStatusCompleted {
		slog.Warn("execute declined",
			slog.String("payment_id", paymentID),
			slog.String("transaction_status", execResp.TransactionStatus),
		)
		return r.markFailed(ctx, session, model.FailureReasonExecuteDeclined)
	}

	return r.complete(ctx, session, execResp.TrxID)
}

// markFailed はセッションをfailedへ遷移させる。
// すでに終端状態だった場合は何もしない（冪等）。
func (r *Reconciler) markFailed(ctx context.Context, session *model.PaymentSession, reason model.FailureReason) error {
	applied, err := r.repo.MarkFailed(ctx, session.ID, reason)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	if r.metrics != nil {
		r.metrics.RecordDepositFailed(string(reason))
	}

	slog.Info("deposit failed",
		slog.String("payment_id", session.ID),
		slog.String("user_id", session.UserID),
		slog.String("reason", string(reason)),
	)
	return nil
}

// complete はセッションをcompletedへ遷移させ、同一トランザクションで
// 台帳に記帳する。遷移が適用されなかった場合（並行コールバックに先を
// 越された場合）は記帳も行われない。
func (r *Reconciler) complete(ctx context.Context, session *model.PaymentSession, trxID string) error {
	entry := &model.LedgerEntry{
		ID:        uuid.New().String(),
		UserID:    session.UserID,
		PaymentID: session.ID,
		Amount:    session.Amount,
		CreatedAt: time.Now(),
	}

	applied, err := r.repo.CompleteAndCredit(ctx, session.ID, trxID, entry)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	if r.metrics != nil {
		r.metrics.RecordDepositCompleted()
		r.metrics.RecordLedgerCredited()
	}

	slog.Info("deposit completed",
		slog.String("payment_id", session.ID),
		slog.String("user_id", session.UserID),
		slog.String("trx_id", trxID),
		slog.String("amount", session.Amount.StringFixed(2)),
	)
	return nil
}
