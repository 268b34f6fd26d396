package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smartnotes/core/internal/config"
	"github.com/smartnotes/core/internal/database"
	"github.com/smartnotes/core/internal/middleware"
	"github.com/smartnotes/core/internal/modules/ai"
	"github.com/smartnotes/core/internal/modules/notes"
	"github.com/smartnotes/core/internal/modules/transcribe"
	"github.com/smartnotes/core/internal/modules/transcript"
	"github.com/smartnotes/core/internal/modules/youtube"
	pkgcron "github.com/smartnotes/core/internal/pkg/cron"
	"github.com/smartnotes/core/internal/pkg/journal"
	pkgredis "github.com/smartnotes/core/internal/pkg/redis"
	"github.com/smartnotes/core/internal/pkg/storage"
	"github.com/smartnotes/core/internal/pkg/taskqueue"
)

// App holds all application dependencies.
type App struct {
	cfg     *config.AppConfig
	router  *gin.Engine
	db      *gorm.DB
	redis   *pkgredis.Client
	logger  *zap.Logger
	cancel  context.CancelFunc
	sched   *pkgcron.Scheduler
	tasks   *notes.Tasks
	audio   *youtube.AudioDownloader
	started time.Time
}

// New wires the application: runtime settings, stores, providers, routes.
// cfg must already be validated.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := applyRuntimeSettings(cfg); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger, started: time.Now()}
	if err := a.init(); err != nil {
		a.closeBackends()
		return nil, err
	}
	return a, nil
}

func (a *App) init() error {
	cfg, logger := a.cfg, a.logger

	j, err := journal.New(cfg.ProcessingLogPath(), cfg.DiscussionLogPath(), cfg.TranscriptDir())
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}

	var store notes.Store = notes.NewMemoryStore()
	if cfg.Database.Enable {
		db, err := database.Connect(cfg, true)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		a.db = db
		store = notes.NewGormStore(db)
	} else {
		logger.Info("database disabled, notes are kept in memory")
	}

	if cfg.Redis.Enable {
		rc, err := pkgredis.Connect(cfg.Redis.URLValue())
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.redis = rc
	}

	provider, err := ai.NewProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}
	generator, err := ai.NewGenerator(provider, cfg.LLM.PromptTemplate, j, logger)
	if err != nil {
		return err
	}

	acquirer := a.buildAcquirer()

	var artifacts notes.ArtifactStore
	if cfg.S3.Enable {
		s3Store, err := storage.NewS3Store(cfg.S3)
		if err != nil {
			return fmt.Errorf("s3: %w", err)
		}
		artifacts = s3Store
	}

	pipeline := notes.NewPipeline(acquirer, generator, j, store, artifacts, logger)
	if a.redis != nil {
		timeout := time.Duration(cfg.Pipeline.TimeoutSeconds) * time.Second
		a.tasks = notes.NewTasks(taskqueue.NewService(a.redis), pipeline, timeout, logger)
		recoverCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := a.tasks.RecoverInterrupted(recoverCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("recover interrupted tasks: %w", err)
		}
	}

	a.router = a.buildRouter()

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.sched = pkgcron.New(logger)
	registerCronJobs(a.sched, a.tasks, a.audio, logger)
	a.sched.Start(ctx)

	a.registerRoutes(notes.NewHandler(pipeline, store, a.tasks))
	return nil
}

// buildAcquirer returns the transcript stage. The speech-to-text fallback is
// only wired when enabled; otherwise the acquirer gets nil interfaces.
func (a *App) buildAcquirer() *transcript.Acquirer {
	cfg := a.cfg
	captions := youtube.NewCaptionsClient(
		&http.Client{Timeout: time.Duration(cfg.Captions.TimeoutSeconds) * time.Second},
		cfg.Captions.WatchURL,
	)
	if !cfg.SpeechToText.Enable {
		a.logger.Info("speech-to-text fallback disabled")
		return transcript.NewAcquirer(captions, nil, nil, a.logger)
	}

	sttTimeout := time.Duration(cfg.SpeechToText.TimeoutSeconds) * time.Second
	a.audio = youtube.NewAudioDownloader(cfg.SpeechToText.YtdlpPath, filepath.Join(cfg.TempDir(), "audio"), sttTimeout)
	stt := transcribe.NewWhisperClient(
		cfg.SpeechToText.Endpoint,
		cfg.SpeechToText.APIKey,
		cfg.SpeechToText.Model,
		sttTimeout,
	)
	return transcript.NewAcquirer(captions, a.audio, stt, a.logger)
}

func (a *App) buildRouter() *gin.Engine {
	if a.cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(a.logger.Named("http")))
	router.Use(cors.New(corsConfig(a.cfg)))
	if a.redis != nil && a.cfg.Pipeline.RateLimitPerMinute > 0 {
		router.Use(middleware.RateLimit(a.redis.Raw(), a.cfg.Pipeline.RateLimitPerMinute))
	}
	return router
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background work and closes the backends. Queued runs are
// allowed to finish first.
func (a *App) Shutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.sched != nil {
		a.sched.Wait()
	}
	if a.tasks != nil {
		a.tasks.Wait()
	}
	a.closeBackends()
}

func (a *App) closeBackends() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
}
