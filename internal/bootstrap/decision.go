package bootstrap

import (
	"net/url"

	"github.com/hitoshi/hansang/internal/mode"
)

// Kind はルーティングガードの判定種別。
type Kind int

const (
	// KindAllow はページを表示してよいことを示す。
	KindAllow Kind = iota
	// KindRedirect は別のパスへ移動させることを示す。
	KindRedirect
	// KindDeny はページを表示できないことを示す。
	KindDeny
)

func (k Kind) String() string {
	switch k {
	case KindAllow:
		return "allow"
	case KindRedirect:
		return "redirect"
	default:
		return "deny"
	}
}

// Gates はページの前に表示するオンボーディング。
type Gates struct {
	Welcome         bool `json:"welcome"`
	QuizPrompt      bool `json:"quizPrompt"`
	GuestOnboarding bool `json:"guestOnboarding"`
}

// Decision はShell.Enterの判定結果。
type Decision struct {
	Kind     Kind
	Location string // KindRedirect の移動先
	Reason   string // KindDeny の理由
	State    mode.State
	Gates    Gates
}

// Allow は表示を許可する判定を返す。
func Allow(st mode.State, gates Gates) Decision {
	return Decision{Kind: KindAllow, State: st, Gates: gates}
}

// RedirectTo はpathへ移動させる判定を返す。
func RedirectTo(path string) Decision {
	return Decision{Kind: KindRedirect, Location: path}
}

// Deny は表示を拒否する判定を返す。
func Deny(reason string) Decision {
	return Decision{Kind: KindDeny, Reason: reason}
}

// LoginPath はログインページのパス。
const LoginPath = "/login"

// HostMainPath はホスト自身のメインページのパスを返す。
func HostMainPath(userID string) string {
	return "/u/" + url.PathEscape(userID) + "/main"
}
