package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orpheus-edu/orpheus-core/internal/clients/avatar"
	"github.com/orpheus-edu/orpheus-core/internal/clients/llm"
	"github.com/orpheus-edu/orpheus-core/internal/clients/postprocessing"
	"github.com/orpheus-edu/orpheus-core/internal/clients/retrieval"
	"github.com/orpheus-edu/orpheus-core/internal/clients/slides"
	"github.com/orpheus-edu/orpheus-core/internal/clients/statusservice"
	"github.com/orpheus-edu/orpheus-core/internal/clients/tts"
	"github.com/orpheus-edu/orpheus-core/internal/handlers"
	"github.com/orpheus-edu/orpheus-core/internal/jobs"
	"github.com/orpheus-edu/orpheus-core/internal/layouts"
	"github.com/orpheus-edu/orpheus-core/internal/observability"
	"github.com/orpheus-edu/orpheus-core/internal/pipeline"
	"github.com/orpheus-edu/orpheus-core/internal/platform/logger"
	"github.com/orpheus-edu/orpheus-core/internal/server"
	"github.com/orpheus-edu/orpheus-core/internal/status"
	"github.com/orpheus-edu/orpheus-core/internal/taskpool"
	"github.com/orpheus-edu/orpheus-core/internal/worker"
)

type App struct {
	Log    *logger.Logger
	Cfg    Config
	Router *gin.Engine
	Store  *status.Store
	Jobs   *jobs.Manager

	pool   *taskpool.Pool
	worker *worker.Worker

	srv          *http.Server
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "orpheus-core",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	store := status.NewStore(log, cfg.StatusTTL)

	// The HTTP surface always reads the local store. Pipeline and worker
	// writes go through the updater, which may point at a remote status
	// service running the same surface.
	var updater status.Updater = status.NewLocalUpdater(store)
	if cfg.StatusServiceHost != "" {
		remote, err := statusservice.NewClient(log, cfg.StatusServiceHost)
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("init status service client: %w", err)
		}
		updater = remote
	}

	jobManager := jobs.NewManager(log, cfg.JobTTL)
	queue := worker.NewQueue()
	assets := worker.NewAssetResolver(cfg.AssetsRoot)
	catalog, err := layouts.NewCatalog()
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load layout catalog: %w", err)
	}

	// Debug mode bypasses every collaborator. The pipeline substitutes its
	// own fixture payloads; the render worker gets placeholder-writing TTS
	// and avatar clients so smoke runs still drive slots to DONE.
	var (
		llmClient    llm.Client
		retClient    retrieval.Client
		ppClient     postprocessing.Client
		ttsClient    tts.Client
		avatarClient avatar.Client
	)
	if cfg.Debug {
		ttsClient = tts.NewDebugClient(log)
		avatarClient = avatar.NewDebugClient(log)
	} else {
		if llmClient, err = llm.NewClient(log); err != nil {
			log.Sync()
			return nil, fmt.Errorf("init llm client: %w", err)
		}
		if retClient, err = retrieval.NewClient(log); err != nil {
			log.Sync()
			return nil, fmt.Errorf("init retrieval client: %w", err)
		}
		if ppClient, err = postprocessing.NewClient(log); err != nil {
			log.Sync()
			return nil, fmt.Errorf("init postprocessing client: %w", err)
		}
		if ttsClient, err = tts.NewClient(log); err != nil {
			log.Sync()
			return nil, fmt.Errorf("init tts client: %w", err)
		}
		if avatarClient, err = avatar.NewClient(log); err != nil {
			log.Sync()
			return nil, fmt.Errorf("init avatar client: %w", err)
		}
	}

	pipelineSvc := pipeline.New(
		log,
		pipeline.Config{
			SplittingModel: cfg.SplittingModel,
			SlidesgenModel: cfg.SlidesgenModel,
			Theme:          cfg.Theme,
			Debug:          cfg.Debug,
		},
		llmClient,
		retClient,
		ppClient,
		updater,
		jobManager,
		queue,
		catalog,
	)

	if !cfg.Debug && cfg.SlidesAPIURL != "" {
		slidesRemote, err := slides.NewClient(log)
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("init slides client: %w", err)
		}
		pipelineSvc.UseRemoteSlides(slidesRemote)
	}

	var slideWorker *worker.Worker
	if ttsClient != nil && avatarClient != nil {
		slideWorker = worker.New(log, queue, updater, ttsClient, avatarClient, assets,
			cfg.VideoRoot, cfg.PublicVideosBase)
	}

	pool := taskpool.New(log, cfg.PipelineWorkers)

	promptHandler := handlers.NewPromptHandler(log, pipelineSvc, pool)
	slidesHandler := handlers.NewSlidesHandler(log, pipelineSvc, jobManager, ppClient, pool)
	statusHandler := handlers.NewStatusHandler(log, store)

	router := server.NewRouter(server.RouterConfig{
		ServiceName:   "orpheus-core",
		PromptHandler: promptHandler,
		SlidesHandler: slidesHandler,
		StatusHandler: statusHandler,
		VideoRoot:     cfg.VideoRoot,
	})

	return &App{
		Log:          log,
		Cfg:          cfg,
		Router:       router,
		Store:        store,
		Jobs:         jobManager,
		pool:         pool,
		worker:       slideWorker,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background machinery: the pipeline task pool, the slide
// worker and the status store janitor.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.pool.Start(ctx)
	if a.worker != nil {
		a.worker.Start(ctx)
	}

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := a.Store.PurgeStale(now); n > 0 {
					a.Log.Info("purged stale status records", "count", n)
				}
			}
		}
	}()
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	a.srv = &http.Server{
		Addr:              addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts the app down in order: stop accepting requests, stop the
// background machinery, flush telemetry and logs.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := a.srv.Shutdown(ctx); err != nil {
			a.Log.Warn("http shutdown failed", "error", err)
		}
		cancel()
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
