// Package mode は閲覧者がホストかゲストかを判定する。
//
// Resolveは純粋関数で、ネットワークにも保存済みの状態にも触れない。
// Providerはマウント単位でゲストモードを固定する。
package mode

import (
	"errors"
	"strings"
)

// Mode は閲覧者の立場。
type Mode string

const (
	// ModeHost は생일한상の持ち主として閲覧している状態。
	ModeHost Mode = "host"
	// ModeGuest は招待コードで閲覧している状態。
	ModeGuest Mode = "guest"
)

// ErrNotRepresentable はコードがなく、ルートのユーザーが保存済みのホストと一致しないことを示す。
// 呼び出し元はモードを参照する前にリダイレクトしなければならない。
var ErrNotRepresentable = errors.New("mode not representable for this viewer")

// Input はモード判定の入力。
type Input struct {
	UserID       string // ルートの userId パスセグメント
	Code         string // ?code= クエリパラメータ
	StoredHostID string // 保存済みのホストユーザーID
}

// State はモード判定の結果。
type State struct {
	Mode         Mode   `json:"mode"`
	SharedHostID string `json:"sharedHostId"`
	Code         string `json:"code,omitempty"`
}

// IsGuest はゲストモードかを返す。
func (s State) IsGuest() bool { return s.Mode == ModeGuest }

// Resolve は入力からモードを判定する。
// コードがあれば保存済みのホストIDに関係なくゲスト。
func Resolve(in Input) (State, error) {
	code := strings.TrimSpace(in.Code)
	if code != "" {
		return State{Mode: ModeGuest, SharedHostID: in.UserID, Code: code}, nil
	}
	if in.StoredHostID != "" && in.UserID == in.StoredHostID {
		return State{Mode: ModeHost, SharedHostID: in.UserID}, nil
	}
	return State{}, ErrNotRepresentable
}
