// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/minipay/internal/model"
)

const sessionCookieName = "session_id"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	LoginWithWidget(ctx context.Context, claim map[string]string) (*model.Session, error)
	LoginWithWebApp(ctx context.Context, initData string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はTelegram認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// webAppLoginRequest はWebAppログインリクエストのボディ。
type webAppLoginRequest struct {
	InitData string `json:"init_data"`
}

// TelegramLogin はログインウィジェットのクレームを検証しセッションを発行する。
// リクエストボディはウィジェットが返すJSONオブジェクトそのもの。
// POST /auth/telegram
func (h *AuthHandler) TelegramLogin(w http.ResponseWriter, r *http.Request) {
	claim, err := decodeClaim(r)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	session, err := h.service.LoginWithWidget(r.Context(), claim)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.finishLogin(w, r, session)
}

// WebAppLogin はMini AppのinitData文字列を検証しセッションを発行する。
// POST /auth/telegram/webapp
func (h *AuthHandler) WebAppLogin(w http.ResponseWriter, r *http.Request) {
	var req webAppLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InitData == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "init_dataフィールドを含むJSONでリクエストしてください。",
		})
		return
	}

	session, err := h.service.LoginWithWebApp(r.Context(), req.InitData)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.finishLogin(w, r, session)
}

// finishLogin はセッションCookieを設定し、ログイン済みユーザー情報を返す。
func (h *AuthHandler) finishLogin(w http.ResponseWriter, r *http.Request, session *model.Session) {
	// セッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	user, err := h.service.GetCurrentUser(r.Context(), session.ID)
	if err != nil {
		slog.Error("failed to load user after login", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserResponse(user))
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	// セッションCookieをクリア
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to get current user", slog.String("error", err.Error()))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toUserResponse(user))
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`
}

// toUserResponse はmodel.UserからAPIレスポンスに変換する。
func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Username:  user.Username,
		PhotoURL:  user.PhotoURL,
	}
}

// decodeClaim はログインウィジェットのJSONボディを文字列マップに変換する。
// ウィジェットはidやauth_dateを数値として送るため、json.Numberを経由して
// 精度を落とさず文字列化する。署名検証はこの文字列表現に対して行われる。
func decodeClaim(r *http.Request) (map[string]string, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	claim := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			claim[k] = val
		case json.Number:
			claim[k] = val.String()
		case bool:
			claim[k] = strconv.FormatBool(val)
		default:
			// ネストした値はウィジェットのクレームには現れない
			b, err := json.Marshal(val)
			if err != nil {
				return nil, err
			}
			claim[k] = string(b)
		}
	}
	return claim, nil
}
