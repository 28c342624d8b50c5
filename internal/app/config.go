package app

import (
	"time"

	"github.com/orpheus-edu/orpheus-core/internal/platform/envutil"
	"github.com/orpheus-edu/orpheus-core/internal/platform/logger"
)

type Config struct {
	Port string

	// Model routing: one model decomposes, scripts and narrates, the other
	// fills slide fields.
	SplittingModel string
	SlidesgenModel string

	Theme string

	// VideoRoot is where generated WAV/MP4 artifacts land, AssetsRoot holds
	// per-course voice samples and portraits. PublicVideosBase is the URL
	// prefix under which VideoRoot is served.
	VideoRoot        string
	AssetsRoot       string
	PublicVideosBase string

	// SlidesAPIURL, when set, delegates the slide sub-pipeline to an
	// external slides service instead of running it in-process.
	SlidesAPIURL string

	// StatusServiceHost, when set, redirects pipeline and worker status
	// writes to a remote status service instead of the local store.
	StatusServiceHost string

	StatusTTL time.Duration
	JobTTL    time.Duration

	PipelineWorkers int

	Environment string
	Version     string

	Debug bool
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:              envutil.Str("PORT", "8080"),
		SplittingModel:    envutil.Str("SPLITTING_MODEL", "llama3.3:70b"),
		SlidesgenModel:    envutil.Str("SLIDESGEN_MODEL", "llama3.3:70b"),
		Theme:             envutil.Str("SLIDES_THEME", "default"),
		VideoRoot:         envutil.Str("VIDEO_ROOT", "/var/lib/orpheus/videos"),
		AssetsRoot:        envutil.Str("AVATAR_ASSETS_ROOT", "/var/lib/orpheus/assets"),
		PublicVideosBase:  envutil.Str("PUBLIC_VIDEOS_BASE", ""),
		SlidesAPIURL:      envutil.Str("SLIDES_API_URL", ""),
		StatusServiceHost: envutil.Str("STATUS_SERVICE_HOST", ""),
		StatusTTL:         envutil.Hours("STATUS_TTL_HOURS", 24*time.Hour),
		JobTTL:            envutil.Hours("JOB_TTL_HOURS", 24*time.Hour),
		PipelineWorkers:   envutil.Int("PIPELINE_WORKERS", 4),
		Environment:       envutil.Str("ENVIRONMENT", "development"),
		Version:           envutil.Str("SERVICE_VERSION", ""),
		Debug:             envutil.Bool("ORPHEUS_DEBUG", false),
	}
	log.Info("configuration loaded",
		"port", cfg.Port,
		"splitting_model", cfg.SplittingModel,
		"slidesgen_model", cfg.SlidesgenModel,
		"theme", cfg.Theme,
		"status_ttl", cfg.StatusTTL,
		"job_ttl", cfg.JobTTL,
		"pipeline_workers", cfg.PipelineWorkers,
		"debug", cfg.Debug,
	)
	return cfg
}
