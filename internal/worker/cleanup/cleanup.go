// Package cleanup はクライアント状態の自動削除ジョブを提供する。
// 保持期間を超えて更新されていないclient_stateの行を日次バッチで削除する。
// タブセッションの行はタブを閉じると参照されなくなるため、ここで回収される。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// StaleDeleter は古い行の削除を抽象化するインターフェース。
// repository.ClientStateRepository が実装する。
type StaleDeleter interface {
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超過したクライアント状態の自動削除ジョブ。
// 冪等であり、削除対象がなくてもエラーにならない。
type CleanupJob struct {
	repo          StaleDeleter
	logger        *slog.Logger
	RetentionDays int // 保持日数
	now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(repo StaleDeleter, logger *slog.Logger, retentionDays int) *CleanupJob {
	return &CleanupJob{
		repo:          repo,
		logger:        logger,
		RetentionDays: retentionDays,
		now:           time.Now,
	}
}

// Run はRetentionDays日より前に更新された行を削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	if j.RetentionDays <= 0 {
		return fmt.Errorf("retention days must be positive: %d", j.RetentionDays)
	}

	start := time.Now()
	before := j.now().AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.repo.DeleteStale(ctx, before)
	if err != nil {
		j.logger.Error("クライアント状態のクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("クライアント状態のクリーンアップに失敗: %w", err)
	}

	j.logger.Info("クライアント状態のクリーンアップが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回、その後interval毎にRunを実行する。ctxが終了するまでブロックする。
// 失敗はログに残して次回に持ち越す。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
