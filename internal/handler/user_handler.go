package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/minipay/internal/middleware"
	"github.com/hitoshi/minipay/internal/model"
)

// UserFinder はユーザー取得のインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// UserHandler はユーザー関連のHTTPハンドラー。
type UserHandler struct {
	users UserFinder
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(users UserFinder) *UserHandler {
	return &UserHandler{users: users}
}

// Avatar はログイン時に取り込んだアバター画像を返す。
// 外部のphoto_URLへ直接アクセスさせず、保存済みのバイト列を配信する。
// GET /api/users/me/avatar
func (h *UserHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, unauthorizedError())
		return
	}

	user, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	if len(user.AvatarData) == 0 {
		http.Error(w, "no avatar", http.StatusNotFound)
		return
	}

	mime := user.AvatarMime
	if mime == "" {
		mime = "application/octet-stream"
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(user.AvatarData)
}
