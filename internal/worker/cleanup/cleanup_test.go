package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// mockStaleDeleter はStaleDeleterのモック実装。
type mockStaleDeleter struct {
	deleteStaleFn func(ctx context.Context, before time.Time) (int64, error)
	calls         atomic.Int32
}

func (m *mockStaleDeleter) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	m.calls.Add(1)
	if m.deleteStaleFn != nil {
		return m.deleteStaleFn(ctx, before)
	}
	return 0, nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func TestCleanupJob_Run_DeletesRowsOlderThanRetention(t *testing.T) {
	var buf bytes.Buffer
	fixed := time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)

	var gotBefore time.Time
	repo := &mockStaleDeleter{deleteStaleFn: func(_ context.Context, before time.Time) (int64, error) {
		gotBefore = before
		return 42, nil
	}}
	job := NewCleanupJob(repo, newTestLogger(&buf), 400)
	job.now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if want := fixed.AddDate(0, 0, -400); !gotBefore.Equal(want) {
		t.Errorf("before = %v, want %v", gotBefore, want)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log: %v", err)
	}
	if entry["deleted_count"] != float64(42) {
		t.Errorf("deleted_count = %v, want 42", entry["deleted_count"])
	}
	if entry["retention_days"] != float64(400) {
		t.Errorf("retention_days = %v, want 400", entry["retention_days"])
	}
}

func TestCleanupJob_Run_ReturnsRepositoryError(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockStaleDeleter{deleteStaleFn: func(context.Context, time.Time) (int64, error) {
		return 0, errors.New("connection refused")
	}}
	job := NewCleanupJob(repo, newTestLogger(&buf), 30)

	err := job.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("リポジトリのエラーを含むべきです: %v", err)
	}
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Errorf("エラーログが出力されていません: %s", buf.String())
	}
}

func TestCleanupJob_Run_RejectsNonPositiveRetention(t *testing.T) {
	repo := &mockStaleDeleter{}
	job := NewCleanupJob(repo, newTestLogger(&bytes.Buffer{}), 0)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("保持日数0はエラーになるべきです")
	}
	if repo.calls.Load() != 0 {
		t.Error("保持日数が不正な場合は削除しないはずです")
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	repo := &mockStaleDeleter{}
	job := NewCleanupJob(repo, newTestLogger(&bytes.Buffer{}), 30)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for repo.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("起動直後に実行されていません")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後に停止していません")
	}
}
