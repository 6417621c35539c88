package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/minipay/internal/model"
)

func TestUserHandler_Avatar_ServesStoredImage(t *testing.T) {
	pngBytes := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	finder := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			if id != "user-1" {
				t.Errorf("FindByID id = %q, want %q", id, "user-1")
			}
			return &model.User{
				ID:         "user-1",
				AvatarData: pngBytes,
				AvatarMime: "image/png",
			}, nil
		},
	}
	h := NewUserHandler(finder)

	req := authedRequest(http.MethodGet, "/api/users/me/avatar", "")
	w := httptest.NewRecorder()
	h.Avatar(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want %q", ct, "image/png")
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "private, max-age=3600" {
		t.Errorf("Cache-Control = %q, want %q", cc, "private, max-age=3600")
	}
	if !bytes.Equal(w.Body.Bytes(), pngBytes) {
		t.Error("response body does not match stored avatar bytes")
	}
}

func TestUserHandler_Avatar_FallbackMime(t *testing.T) {
	finder := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: "user-1", AvatarData: []byte{0x01}}, nil
		},
	}
	h := NewUserHandler(finder)

	req := authedRequest(http.MethodGet, "/api/users/me/avatar", "")
	w := httptest.NewRecorder()
	h.Avatar(w, req)

	if ct := w.Result().Header.Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/octet-stream")
	}
}

func TestUserHandler_Avatar_NoAvatarReturns404(t *testing.T) {
	finder := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: "user-1"}, nil
		},
	}
	h := NewUserHandler(finder)

	req := authedRequest(http.MethodGet, "/api/users/me/avatar", "")
	w := httptest.NewRecorder()
	h.Avatar(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}

func TestUserHandler_Avatar_UnknownUserReturns404(t *testing.T) {
	h := NewUserHandler(&mockUserFinder{})

	req := authedRequest(http.MethodGet, "/api/users/me/avatar", "")
	w := httptest.NewRecorder()
	h.Avatar(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}

	var body apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Code != model.ErrCodeUserNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUserNotFound)
	}
}

func TestUserHandler_Avatar_Unauthenticated(t *testing.T) {
	finder := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			t.Fatal("FindByID must not be called without a session")
			return nil, nil
		},
	}
	h := NewUserHandler(finder)

	req := httptest.NewRequest(http.MethodGet, "/api/users/me/avatar", nil)
	w := httptest.NewRecorder()
	h.Avatar(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}
