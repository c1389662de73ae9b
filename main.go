package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/text/language"

	"github.com/menu-lens/server/internal/analysis/backends"
	"github.com/menu-lens/server/internal/analysis/cache"
	"github.com/menu-lens/server/internal/analysis/client"
	"github.com/menu-lens/server/internal/analysis/engine"
	"github.com/menu-lens/server/internal/analysis/extractor"
	"github.com/menu-lens/server/internal/analysis/model"
	"github.com/menu-lens/server/internal/analysis/projector"
	"github.com/menu-lens/server/internal/core"
	"github.com/menu-lens/server/internal/server"
	logx "github.com/menu-lens/server/pkg/logger"
	pkgredis "github.com/menu-lens/server/pkg/redis"
)

// AppConfig defines all configurable parameters, sourced from environment
// variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	Language    string `envconfig:"LANGUAGE" default:"en"`

	// Infrastructure
	Redis pkgredis.Config

	// Analysis
	Backend        model.BackendConfig
	Cache          model.CacheConfig
	CacheRetention time.Duration `envconfig:"CACHE_RETENTION" default:"720h"`
	Extractor      model.ExtractorConfig

	// Dietary preferences for command-line runs
	DietaryType        string `envconfig:"DIETARY_TYPE" default:"vegan"`
	CustomRestrictions string `envconfig:"CUSTOM_RESTRICTIONS"`

	// Remote function server
	Server model.ServerConfig
}

const sampleMenu = `Grilled Chicken Breast - $14
Vegan Buddha Bowl - quinoa, roasted chickpeas, tahini - $12
Margherita Pizza - tomato, mozzarella, basil - $13
Pad Thai - rice noodles, tofu, peanuts - $11
Caesar Salad - romaine, parmesan, anchovy dressing - $9`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Load structured config from env
	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(envCfg.Environment)})

	router := backends.NewRouter(&envCfg.Backend)

	if envCfg.Server.Addr != "" {
		if err := runServer(ctx, &envCfg, router); err != nil {
			logx.Fatal().Err(err).Msg("Function server stopped")
		}
		return
	}

	if err := runCLI(ctx, &envCfg, router, os.Args[1:]); err != nil {
		logx.Fatal().Err(err).Msg("Analysis failed")
	}
}

// runServer serves the analysis function for every provider whose local
// credentials resolve.
func runServer(ctx context.Context, cfg *AppConfig, router *backends.Router) error {
	runners := make(map[model.Provider]server.Runner, 2)
	for _, p := range []model.Provider{model.ProviderGemini, model.ProviderVertex} {
		c, err := client.NewFromRouter(ctx, router, p, model.ModeLocal, cfg.Backend.Timeout)
		if err != nil {
			if p == cfg.Backend.Provider {
				return fmt.Errorf("build %s client: %w", p, err)
			}
			logx.Warn().Err(err).Str("provider", string(p)).Msg("Provider not served")
			continue
		}
		runners[p] = c
	}

	handler, err := server.NewRouter(&server.Container{
		Runners:         runners,
		DefaultProvider: cfg.Backend.Provider,
		BearerToken:     cfg.Server.BearerToken,
	})
	if err != nil {
		return err
	}
	return server.Serve(ctx, cfg.Server.Addr, handler)
}

// runCLI analyzes one menu: a URL, an image file, a text file, "-" for stdin,
// or the built-in sample when no argument is given.
func runCLI(ctx context.Context, cfg *AppConfig, router *backends.Router, args []string) error {
	rdb, err := cfg.Redis.New(ctx)
	if err != nil {
		return fmt.Errorf("initialise Redis client: %w", err)
	}
	defer rdb.Close()
	logx.Debug().Msg("Connected to Redis successfully")

	analyzer, err := client.NewFromRouter(ctx, router, cfg.Backend.Provider, cfg.Backend.Mode, cfg.Backend.Timeout)
	if err != nil {
		return err
	}

	lang, err := language.Parse(cfg.Language)
	if err != nil {
		logx.Warn().Err(err).Str("language", cfg.Language).Msg("Unknown language; using root collation")
		lang = language.Und
	}

	eng, err := engine.New(engine.Deps{
		Analyzer:  analyzer,
		Cache:     cache.NewRedisResultCache(rdb, cfg.Cache.Namespace),
		Extractor: extractor.New(cfg.Extractor),
		Fetcher:   engine.NewHTTPFetcher(nil),
		Projector: projector.New(lang),
	}, cfg.Cache)
	if err != nil {
		return err
	}

	if cfg.CacheRetention > 0 {
		if _, err := eng.Prune(ctx, cfg.CacheRetention); err != nil {
			logx.Warn().Err(err).Msg("Cache prune failed")
		}
	}

	prefs := model.DietaryPreferences{
		DietaryType:        model.DietType(cfg.DietaryType),
		CustomRestrictions: cfg.CustomRestrictions,
		LastUpdated:        time.Now(),
	}

	resp, err := analyzeInput(ctx, eng, prefs, args)
	if err != nil {
		return err
	}

	out := struct {
		Response    *model.AnalysisResponse  `json:"response"`
		Categorized model.CategorizedResults `json:"categorized"`
	}{
		Response:    resp,
		Categorized: eng.Categorize(eng.ApplyFilter(resp.Results, model.DefaultFilter())),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}

func analyzeInput(ctx context.Context, eng *engine.Engine, prefs model.DietaryPreferences, args []string) (*model.AnalysisResponse, error) {
	if len(args) == 0 {
		return eng.AnalyzeText(ctx, sampleMenu, prefs)
	}

	src := args[0]
	switch {
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return eng.AnalyzeDocument(ctx, src, prefs)
	case src == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return eng.AnalyzeText(ctx, string(b), prefs)
	}

	b, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read menu file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(src)) {
	case ".jpg", ".jpeg", ".png", ".webp", ".heic", ".gif":
		return eng.AnalyzeImage(ctx, b, "", prefs)
	default:
		return eng.AnalyzeText(ctx, string(b), prefs)
	}
}
