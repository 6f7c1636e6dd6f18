// Package model はドメインモデルを定義する。
package model

import "time"

// HostUser はバックエンドに登録された誕生日の主役（ホスト）を表す。
type HostUser struct {
	UserID   ID     `json:"userId"`
	Nickname string `json:"nickname"`
	Email    string `json:"email,omitempty"`
}

// LoginResult はホストログイン（カカオ認可コード交換）の結果を表す。
type LoginResult struct {
	UserID    ID     `json:"userId"`
	AuthToken string `json:"authToken"`
}

// GuestTokens はゲスト認証で発行されるトークンの組を表す。
type GuestTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ClientState はブラウザ単位で永続化されるキー・バリューの1件を表す。
// OwnerIDはデバイスIDまたはタブセッションIDのいずれか。
type ClientState struct {
	OwnerID   string
	Key       string
	Value     string
	UpdatedAt time.Time
}
