package clientstate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// mockRepo はClientStateRepositoryのモック。
type mockRepo struct {
	values    map[string]string
	getErr    error
	deleted   []string
	lastOwner string
}

func newMockRepo() *mockRepo {
	return &mockRepo{values: make(map[string]string)}
}

func (m *mockRepo) Get(_ context.Context, ownerID, key string) (string, bool, error) {
	m.lastOwner = ownerID
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.values[ownerID+"/"+key]
	return v, ok, nil
}

func (m *mockRepo) Set(_ context.Context, ownerID, key, value string) error {
	m.lastOwner = ownerID
	m.values[ownerID+"/"+key] = value
	return nil
}

func (m *mockRepo) Delete(_ context.Context, ownerID, key string) error {
	m.lastOwner = ownerID
	m.deleted = append(m.deleted, key)
	delete(m.values, ownerID+"/"+key)
	return nil
}


func (m *mockRepo) DeleteStale(_ context.Context, _ time.Time) (int64, error) { return 0, nil }

func TestKeys_AreNamespaced(t *testing.T) {
	keys := []string{
		KeyAccessToken, KeyHostUserID, KeyHostRefreshCookie, KeyLastFeastID,
		KeyLastFeastCode, KeyLastQuizID, KeyGuestAccessToken, KeyGuestRefreshToken,
		KeyGuestNickname, KeyGuestMount, KeyWelcomeSeenDate, KeyQuizPromptSeen,
	}
	seen := map[string]bool{}
	for _, k := range keys {
		if !strings.HasPrefix(k, Prefix) {
			t.Errorf("key %q is not namespaced with %q", k, Prefix)
		}
		if seen[k] {
			t.Errorf("duplicate key %q", k)
		}
		seen[k] = true
	}
}

func TestScoped_BindsOwnerID(t *testing.T) {
	repo := newMockRepo()
	s := NewScoped("device-1", repo)
	ctx := context.Background()

	if err := s.Set(ctx, KeyLastFeastID, "42"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if repo.lastOwner != "device-1" {
		t.Errorf("owner = %q, want device-1", repo.lastOwner)
	}

	v, ok, err := s.Get(ctx, KeyLastFeastID)
	if err != nil || !ok || v != "42" {
		t.Errorf("Get = (%q, %v, %v), want (42, true, nil)", v, ok, err)
	}

	// 別オーナーからは見えない
	other := NewScoped("device-2", repo)
	if _, ok, _ := other.Get(ctx, KeyLastFeastID); ok {
		t.Error("value leaked across owners")
	}
}

func TestScoped_SetEmpty_Deletes(t *testing.T) {
	repo := newMockRepo()
	s := NewScoped("tab-1", repo)
	ctx := context.Background()

	s.Set(ctx, KeyGuestNickname, "철수")
	if err := s.Set(ctx, KeyGuestNickname, ""); err != nil {
		t.Fatalf("Set empty failed: %v", err)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != KeyGuestNickname {
		t.Errorf("deleted = %v, want [%s]", repo.deleted, KeyGuestNickname)
	}
}

func TestMemory_SetGetRemove(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.Set(ctx, KeyAccessToken, "tok")
	if v, ok, _ := m.Get(ctx, KeyAccessToken); !ok || v != "tok" {
		t.Errorf("Get = (%q, %v), want (tok, true)", v, ok)
	}

	m.Set(ctx, KeyAccessToken, "")
	if _, ok, _ := m.Get(ctx, KeyAccessToken); ok {
		t.Error("empty Set should delete")
	}

	m.Set(ctx, KeyHostUserID, "42")
	m.Remove(ctx, KeyHostUserID)
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
}

func TestGetString_ErrorTreatedAsAbsent(t *testing.T) {
	repo := newMockRepo()
	repo.getErr = errors.New("db down")
	s := NewScoped("device-1", repo)

	if got := GetString(context.Background(), s, KeyLastFeastID); got != "" {
		t.Errorf("GetString = %q, want empty", got)
	}
}
