// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// セッションストアは参照時にも期限を確認するため、このジョブは容量の回収のみを担う。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/passgate/internal/metrics"
)

// DefaultInterval はセッションクリーンアップのデフォルト実行間隔。
const DefaultInterval = time.Hour

// Sweeper は期限切れセッションの削除を抽象化するインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type Sweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CleanupJob は期限切れセッションの削除ジョブ。
// 冪等: 削除対象がない場合でもエラーにならない。
type CleanupJob struct {
	sweeper  Sweeper
	logger   *slog.Logger
	recorder metrics.Recorder
	Interval time.Duration // 実行間隔（デフォルト: 1時間）
	now      func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// recorderがnilの場合はメトリクスを記録しない。
func NewCleanupJob(sweeper Sweeper, logger *slog.Logger, recorder metrics.Recorder) *CleanupJob {
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	return &CleanupJob{
		sweeper:  sweeper,
		logger:   logger,
		recorder: recorder,
		Interval: DefaultInterval,
		now:      time.Now,
	}
}

// Run は現在時刻の時点で期限切れのセッションを1回削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.sweeper.DeleteExpired(ctx, j.now())
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.recorder.RecordSessionsSwept(deleted, duration)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start はctxがキャンセルされるまでInterval毎にRunを実行する。
// 起動直後に1回実行する。個々の実行の失敗はログに記録して継続する。
func (j *CleanupJob) Start(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	j.logger.Info("セッションクリーンアップワーカーを開始しました",
		slog.Duration("interval", interval),
	)

	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップワーカーを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
