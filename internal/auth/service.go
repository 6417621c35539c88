package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/minipay/internal/model"
	"github.com/hitoshi/minipay/internal/repository"
)

// providerTelegram はidentitiesテーブルに記録するIdP名。
const providerTelegram = "telegram"

// ProfileSanitizer はプロフィール文字列のサニタイズインターフェース。
// security.ProfileSanitizerServiceの部分集合として定義する。
type ProfileSanitizer interface {
	SanitizeName(raw string) string
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service はTelegram認証に関するビジネスロジックを提供する。
// クレームの署名検証に成功した場合のみユーザーを認証済みとして扱う。
// 検証を経ないクレームからセッションを発行する経路は存在しない。
type Service struct {
	verifier    *Verifier
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	sanitizer   ProfileSanitizer
	avatars     AvatarFetcherService
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	verifier *Verifier,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	sanitizer ProfileSanitizer,
	avatars AvatarFetcherService,
	config ServiceConfig,
) *Service {
	return &Service{
		verifier:    verifier,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		sanitizer:   sanitizer,
		avatars:     avatars,
		config:      config,
	}
}

// profile はクレームから取り出したユーザープロフィール。
type profile struct {
	TelegramID string
	FirstName  string
	LastName   string
	Username   string
	PhotoURL   string
}

// LoginWithWidget はログインウィジェット形式のクレームを検証し、
// セッションを発行する。検証失敗時はInvalidSignatureエラーを返す。
func (s *Service) LoginWithWidget(ctx context.Context, claim map[string]string) (*model.Session, error) {
	if err := s.verifier.VerifyLoginWidget(claim); err != nil {
		slog.Warn("login widget claim rejected", slog.String("error", err.Error()))
		return nil, model.NewInvalidSignatureError()
	}

	p := profile{
		TelegramID: claim["id"],
		FirstName:  claim["first_name"],
		LastName:   claim["last_name"],
		Username:   claim["username"],
		PhotoURL:   claim["photo_url"],
	}
	if p.TelegramID == "" {
		return nil, model.NewInvalidSignatureError()
	}

	return s.login(ctx, p)
}

// webAppUser はWebApp initDataのuserフィールドのJSON構造。
type webAppUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`
}

// LoginWithWebApp はWebApp initDataを検証し、セッションを発行する。
func (s *Service) LoginWithWebApp(ctx context.Context, initData string) (*model.Session, error) {
	claim, err := s.verifier.VerifyWebAppInitData(initData)
	if err != nil {
		slog.Warn("webapp init data rejected", slog.String("error", err.Error()))
		return nil, model.NewInvalidSignatureError()
	}

	var user webAppUser
	if err := json.Unmarshal([]byte(claim["user"]), &user); err != nil {
		return nil, fmt.Errorf("failed to parse webapp user field: %w", err)
	}
	if user.ID == 0 {
		return nil, model.NewInvalidSignatureError()
	}

	return s.login(ctx, profile{
		TelegramID: strconv.FormatInt(user.ID, 10),
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Username:   user.Username,
		PhotoURL:   user.PhotoURL,
	})
}

// login は検証済みプロフィールに対してユーザーを特定または作成し、
// セッションを発行する。
func (s *Service) login(ctx context.Context, p profile) (*model.Session, error) {
	// 表示名はユーザーが自由に設定できるため、保存前にサニタイズする
	p.FirstName = s.sanitizer.SanitizeName(p.FirstName)
	p.LastName = s.sanitizer.SanitizeName(p.LastName)
	p.Username = s.sanitizer.SanitizeName(p.Username)

	// identitiesテーブルで既存ユーザーを検索
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, providerTelegram, p.TelegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var userID string

	if identity != nil {
		// 既存ユーザー: プロフィールを最新クレームで更新する
		userID = identity.UserID
		user := &model.User{
			ID:        userID,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Username:  p.Username,
			PhotoURL:  p.PhotoURL,
		}
		if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to update user profile: %w", err)
		}
		slog.Info("existing user logged in",
			slog.String("user_id", userID),
			slog.String("provider", providerTelegram),
		)
	} else {
		// 新規ユーザー: usersレコードとidentitiesレコードを同時に作成
		newUserID := uuid.New().String()
		now := time.Now()

		newUser := &model.User{
			ID:        newUserID,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Username:  p.Username,
			PhotoURL:  p.PhotoURL,
			CreatedAt: now,
			UpdatedAt: now,
		}

		newIdentity := &model.Identity{
			ID:             uuid.New().String(),
			UserID:         newUserID,
			Provider:       providerTelegram,
			ProviderUserID: p.TelegramID,
			CreatedAt:      now,
		}

		if err := s.userRepo.CreateWithIdentity(ctx, newUser, newIdentity); err != nil {
			return nil, fmt.Errorf("failed to create user and identity: %w", err)
		}

		userID = newUserID
		slog.Info("new user created",
			slog.String("user_id", userID),
			slog.String("provider", providerTelegram),
		)
	}

	// アバター取得はベストエフォート。失敗してもログインは継続する。
	if data, mime, err := s.avatars.FetchAvatar(ctx, p.PhotoURL); err == nil && data != nil {
		if err := s.userRepo.UpdateAvatar(ctx, userID, data, mime); err != nil {
			slog.Warn("failed to store avatar", slog.String("user_id", userID), slog.String("error", err.Error()))
		}
	}

	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, errors.New("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, errors.New("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
