package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/minipay/internal/middleware"
	"github.com/hitoshi/minipay/internal/model"
	"github.com/shopspring/decimal"
)

// PaymentServiceInterface は入金ハンドラーが必要とするサービスインターフェース。
type PaymentServiceInterface interface {
	// CreateDeposit は入金セッションを作成する。
	CreateDeposit(ctx context.Context, userID string, amount decimal.Decimal) (*model.PaymentSession, json.RawMessage, error)
	// GetSession は入金セッションを取得する。
	GetSession(ctx context.Context, paymentID string) (*model.PaymentSession, error)
	// ListSessions はユーザーの入金セッション一覧を取得する。
	ListSessions(ctx context.Context, userID string) ([]*model.PaymentSession, error)
}

// CallbackReconcilerInterface はコールバック処理のインターフェース。
// payment.Reconcilerの部分集合として定義する。
type CallbackReconcilerInterface interface {
	HandleCallback(ctx context.Context, paymentID, reportedStatus string) error
}

// PaymentHandler は入金セッション管理のHTTPハンドラー。
type PaymentHandler struct {
	service    PaymentServiceInterface
	reconciler CallbackReconcilerInterface
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(service PaymentServiceInterface, reconciler CallbackReconcilerInterface) *PaymentHandler {
	return &PaymentHandler{
		service:    service,
		reconciler: reconciler,
	}
}

// createDepositRequest は入金セッション作成リクエストのボディ。
// 金額は浮動小数点の誤差を避けるため文字列で受け取る。
type createDepositRequest struct {
	Amount string `json:"amount"`
}

// callbackRequest はゲートウェイコールバックのボディ。
type callbackRequest struct {
	PaymentID string `json:"paymentID"`
	Status    string `json:"status"`
}

// paymentResponse は入金セッションのAPIレスポンス。
type paymentResponse struct {
	PaymentID     string `json:"payment_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	InvoiceNumber string `json:"invoice_number"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	TrxID         string `json:"trx_id,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// createDepositResponse は入金セッション作成のAPIレスポンス。
// Gatewayフィールドにはホスト型チェックアウト起動用の生レスポンスを含む。
type createDepositResponse struct {
	Payment paymentResponse `json:"payment"`
	Gateway json.RawMessage `json:"gateway"`
}

// CreateDeposit は入金セッションを作成する。
// POST /api/payments
func (h *PaymentHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	var req createDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidAmountError(req.Amount+" is not a valid amount"))
		return
	}

	session, gatewayRaw, err := h.service.CreateDeposit(r.Context(), userID, amount)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(createDepositResponse{
		Payment: toPaymentResponse(session),
		Gateway: gatewayRaw,
	})
}

// ListDeposits はユーザーの入金セッション一覧を返す。
// GET /api/payments
func (h *PaymentHandler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	sessions, err := h.service.ListSessions(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	payments := make([]paymentResponse, 0, len(sessions))
	for _, s := range sessions {
		payments = append(payments, toPaymentResponse(s))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"payments": payments,
	})
}

// GetDeposit は入金セッションの詳細を返す。
// 他ユーザーのセッションは存在を秘匿するためNotFoundとして扱う。
// GET /api/payments/:paymentID
func (h *PaymentHandler) GetDeposit(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	paymentID := chi.URLParam(r, "paymentID")

	session, err := h.service.GetSession(r.Context(), paymentID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if session.UserID != userID {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewPaymentNotFoundError(paymentID))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toPaymentResponse(session))
}

// Callback はゲートウェイからのコールバックを処理する。
// 報告されたステータスはヒントとして扱われ、最終状態はゲートウェイへの
// 照会結果で決まる。同一コールバックの再送は冪等に処理される。
// POST /api/payments/callback
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PaymentID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "paymentIDフィールドを含むJSONでリクエストしてください。",
		})
		return
	}

	if err := h.reconciler.HandleCallback(r.Context(), req.PaymentID, req.Status); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "processed",
	})
}

// --- ヘルパー関数 ---

// toPaymentResponse はmodel.PaymentSessionからAPIレスポンスに変換する。
func toPaymentResponse(s *model.PaymentSession) paymentResponse {
	return paymentResponse{
		PaymentID:     s.ID,
		Amount:        s.Amount.StringFixed(2),
		Currency:      s.Currency,
		InvoiceNumber: s.InvoiceNumber,
		Status:        string(s.Status),
		FailureReason: string(s.FailureReason),
		TrxID:         s.TrxID,
		CreatedAt:     s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     s.UpdatedAt.Format(time.RFC3339),
	}
}

// unauthorizedError は認証切れの統一エラーを返す。
func unauthorizedError() *model.APIError {
	return &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidAmount:
		return http.StatusBadRequest
	case model.ErrCodeInvalidSignature:
		return http.StatusForbidden
	case model.ErrCodePaymentNotFound:
		return http.StatusNotFound
	case model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeGatewayUnavailable:
		return http.StatusBadGateway
	case "UNAUTHORIZED":
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
