// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// Telegram Mini Appから入金を行うユーザーが対象。
type User struct {
	ID         string
	FirstName  string
	LastName   string
	Username   string
	PhotoURL   string
	AvatarData []byte // サーバー側で取得済みのアバター画像（取得失敗時はnil）
	AvatarMime string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DisplayName は表示名を返す。usernameがあればそれを優先する。
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.FirstName
}

// Identity は外部IdPとの紐付け情報を表す。
// 現状のproviderは"telegram"のみだが、複数IdPに対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
