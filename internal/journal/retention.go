package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler は保持期間を過ぎた履歴をcronスケジュールで削除する。
type Scheduler struct {
	store     Store
	schedule  string
	retention time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler は新しいSchedulerを生成する。scheduleは標準的な5フィールドのcron式。
func NewScheduler(store Store, schedule string, retention time.Duration, logger zerolog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("不正なcron式 %q: %w", schedule, err)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("保持期間は正の値である必要があります: %s", retention)
	}
	return &Scheduler{
		store:     store,
		schedule:  schedule,
		retention: retention,
		logger:    logger.With().Str("component", "journal.scheduler").Logger(),
		now:       time.Now,
		cron:      cron.New(),
	}, nil
}

// PruneOnce は保持期間を過ぎた履歴を1回だけ削除する。
func (s *Scheduler) PruneOnce(ctx context.Context) (int64, error) {
	before := s.now().Add(-s.retention)
	deleted, err := s.store.Prune(ctx, before)
	if err != nil {
		s.logger.Error().Err(err).Msg("履歴の削除に失敗しました")
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted_count", deleted).Time("before", before).Msg("古い履歴を削除しました")
	}
	return deleted, nil
}

// Run はctxがキャンセルされるまでスケジュールに従って削除を実行する。
// 実行中のジョブの完了を待ってから戻る。
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("スケジューラは既に起動しています")
	}
	id, err := s.cron.AddFunc(s.schedule, func() {
		_, _ = s.PruneOnce(ctx)
	})
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("削除ジョブの登録に失敗: %w", err)
	}
	s.cron.Start()
	s.running = true
	s.mu.Unlock()

	s.logger.Info().Str("schedule", s.schedule).Dur("retention", s.retention).Msg("履歴削除スケジューラを起動しました")

	<-ctx.Done()

	s.mu.Lock()
	stopCtx := s.cron.Stop()
	s.cron.Remove(id)
	s.running = false
	s.mu.Unlock()
	<-stopCtx.Done()

	s.logger.Info().Msg("履歴削除スケジューラを停止しました")
	return nil
}

// NextRun は次回の削除予定時刻を返す。起動していなければゼロ値。
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
