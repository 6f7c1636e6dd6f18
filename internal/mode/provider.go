package mode

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/hansang/internal/clientstate"
)

// Mount はProviderの1回のマウントを表す。
// (InitialMode, Code, UserID) が変わると新しいマウントになる。
type Mount struct {
	InitialMode Mode   `json:"initialMode"`
	Code        string `json:"code,omitempty"`
	UserID      string `json:"userId"`
}

// Provider はタブストレージにマウント記録を持ち、ゲストモードを固定する。
// マウント中にcodeが消えるナビゲーションがあってもホストには戻らない。
type Provider struct {
	tab clientstate.Storage
}

// NewProvider はタブストレージを使うProviderを生成する。
func NewProvider(tab clientstate.Storage) *Provider {
	return &Provider{tab: tab}
}

// Mount は新しいマウントとして判定し、ゲストならマウント記録を保存する。
// ホストとして解決した場合は既存のマウント記録を消す。
func (p *Provider) Mount(ctx context.Context, in Input) (State, error) {
	st, err := Resolve(in)
	if err != nil {
		return State{}, err
	}

	if st.Mode == ModeGuest {
		if err := p.save(ctx, Mount{InitialMode: ModeGuest, Code: st.Code, UserID: in.UserID}); err != nil {
			return State{}, err
		}
		return st, nil
	}

	if err := p.tab.Remove(ctx, clientstate.KeyGuestMount); err != nil {
		return State{}, fmt.Errorf("failed to clear guest mount: %w", err)
	}
	return st, nil
}

// Navigate は同じマウント内のナビゲーションとして判定する。
// 同じユーザーのゲストマウントが残っていれば、codeがなくてもゲストのまま。
// codeが付いていれば常に新しいマウントとして扱う。
func (p *Provider) Navigate(ctx context.Context, in Input) (State, error) {
	if in.Code == "" {
		if m, ok := p.current(ctx); ok && m.InitialMode == ModeGuest && m.UserID == in.UserID {
			return State{Mode: ModeGuest, SharedHostID: in.UserID, Code: m.Code}, nil
		}
	}
	return p.Mount(ctx, in)
}

// State は現在のマウント記録から状態を返す。マウントがなければfalse。
func (p *Provider) State(ctx context.Context) (State, bool) {
	m, ok := p.current(ctx)
	if !ok {
		return State{}, false
	}
	return State{Mode: m.InitialMode, SharedHostID: m.UserID, Code: m.Code}, true
}

func (p *Provider) current(ctx context.Context) (Mount, bool) {
	raw := clientstate.GetString(ctx, p.tab, clientstate.KeyGuestMount)
	if raw == "" {
		return Mount{}, false
	}
	var m Mount
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Mount{}, false
	}
	return m, true
}

func (p *Provider) save(ctx context.Context, m Mount) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode mount: %w", err)
	}
	if err := p.tab.Set(ctx, clientstate.KeyGuestMount, string(b)); err != nil {
		return fmt.Errorf("failed to save mount: %w", err)
	}
	return nil
}
