package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/smartnotes/core/internal/modules/notes"
	"github.com/smartnotes/core/internal/modules/youtube"
	pkgcron "github.com/smartnotes/core/internal/pkg/cron"
)

const (
	finishedTaskMaxAge = 24 * time.Hour
	staleAudioMaxAge   = time.Hour // files of live runs are held and skipped
)

// registerCronJobs registers the cleanup jobs for the enabled components.
func registerCronJobs(sched *pkgcron.Scheduler, tasks *notes.Tasks, audio *youtube.AudioDownloader, logger *zap.Logger) {
	cronLogger := logger.Named("cron-jobs")

	if tasks != nil {
		sched.Register(pkgcron.Job{
			Name:        "purge_finished_tasks",
			Description: "Remove finished note tasks older than a day",
			Interval:    6 * time.Hour,
			Fn: func(ctx context.Context) error {
				n, err := tasks.PurgeFinished(ctx, finishedTaskMaxAge)
				if err != nil {
					return err
				}
				if n > 0 {
					cronLogger.Info("purged finished tasks", zap.Int("count", n))
				}
				return nil
			},
		})
	}

	if audio != nil {
		sched.Register(pkgcron.Job{
			Name:        "purge_stale_audio",
			Description: "Delete leftover downloaded audio files",
			Interval:    30 * time.Minute,
			Fn: func(ctx context.Context) error {
				n, err := audio.PurgeStale(staleAudioMaxAge)
				if err != nil {
					return err
				}
				if n > 0 {
					cronLogger.Info("purged stale audio", zap.Int("count", n), zap.String("dir", audio.Dir()))
				}
				return nil
			},
		})
	}
}
