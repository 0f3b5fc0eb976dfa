package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/strata-dev/strata"
	"github.com/strata-dev/strata/pkg/manifest"
	"github.com/strata-dev/strata/pkg/middleware"
	"github.com/strata-dev/strata/pkg/pagecache"
	"github.com/strata-dev/strata/pkg/render"
)

type serveFlags struct {
	addr          string
	distDir       string
	publicDir     string
	basePath      string
	trailingSlash bool
	minimal       bool
	dev           bool

	locales       []string
	defaultLocale string

	cacheEntries int
	cacheDir     string
	cacheSQLite  string
	s3Bucket     string
	s3Prefix     string
	s3Region     string

	logJSON bool
}

func serveCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a build output directory",
		Long: `Serve starts the page server over a build output directory.

Prerendered pages are served through the response cache with background
regeneration; the route tables and middleware manifest in the build output
drive routing. By default the cache lives in memory only; --cache-dir,
--cache-sqlite or --cache-s3-bucket add a durable tier that survives
restarts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", ":3000", "listen address")
	cmd.Flags().StringVar(&flags.distDir, "dist", ".next", "build output directory")
	cmd.Flags().StringVar(&flags.publicDir, "public", "", "public static file directory")
	cmd.Flags().StringVar(&flags.basePath, "base-path", "", "serve the site under this path prefix")
	cmd.Flags().BoolVar(&flags.trailingSlash, "trailing-slash", false, "redirect to trailing-slash URLs instead of away from them")
	cmd.Flags().BoolVar(&flags.minimal, "minimal", false, "minimal mode: an external layer owns routing and errors")
	cmd.Flags().BoolVar(&flags.dev, "dev", false, "development mode")
	cmd.Flags().StringSliceVar(&flags.locales, "locales", nil, "supported locales (first is not implied default)")
	cmd.Flags().StringVar(&flags.defaultLocale, "default-locale", "", "default locale served at unprefixed paths")
	cmd.Flags().IntVar(&flags.cacheEntries, "cache-entries", 1024, "in-memory cache entry limit")
	cmd.Flags().StringVar(&flags.cacheDir, "cache-dir", "", "durable cache directory")
	cmd.Flags().StringVar(&flags.cacheSQLite, "cache-sqlite", "", "durable cache SQLite file")
	cmd.Flags().StringVar(&flags.s3Bucket, "cache-s3-bucket", "", "durable cache S3 bucket")
	cmd.Flags().StringVar(&flags.s3Prefix, "cache-s3-prefix", "page-cache", "S3 key prefix for cache objects")
	cmd.Flags().StringVar(&flags.s3Region, "cache-s3-region", "us-east-1", "S3 region")
	cmd.Flags().BoolVar(&flags.logJSON, "log-json", false, "log in JSON")

	return cmd
}

func runServe(ctx context.Context, flags serveFlags) error {
	logger := newLogger(flags)
	slog.SetDefault(logger)

	durable, closeDurable, err := durableStore(flags, logger)
	if err != nil {
		return err
	}
	if closeDurable != nil {
		defer closeDurable()
	}

	metrics := middleware.NewMetrics()

	manifests := manifest.NewSet(flags.distDir)
	loader := render.NewFSLoader(manifests)
	renderer := render.NewStaticRenderer(manifests)

	app, err := strata.New(strata.Config{
		DistDir:       flags.distDir,
		Dev:           flags.dev,
		MinimalMode:   flags.minimal,
		BasePath:      flags.basePath,
		TrailingSlash: flags.trailingSlash,
		I18n: strata.I18nConfig{
			Locales:       flags.locales,
			DefaultLocale: flags.defaultLocale,
		},
		Cache: strata.CacheConfig{
			MaxEntries: flags.cacheEntries,
			Durable:    durable,
			Hooks:      metrics.CacheHooks(),
		},
		Static: strata.StaticConfig{Dir: flags.publicDir},
		Logger: logger,
	}, loader, renderer, nil)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	r.Mount("/", middleware.OpenTelemetry()(metrics.Handler(app)))

	server := &http.Server{
		Addr:              flags.addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving", "addr", flags.addr, "dist", flags.distDir, "build", app.BuildID())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		// Let in-flight background regenerations commit before exit.
		app.Cache().Wait()
		return nil
	})
	return g.Wait()
}

func newLogger(flags serveFlags) *slog.Logger {
	level := slog.LevelInfo
	if flags.dev {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if flags.logJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// durableStore builds the configured durable cache tier, if any.
func durableStore(flags serveFlags, logger *slog.Logger) (pagecache.Store, func(), error) {
	configured := 0
	for _, v := range []string{flags.cacheDir, flags.cacheSQLite, flags.s3Bucket} {
		if v != "" {
			configured++
		}
	}
	if configured > 1 {
		return nil, nil, errors.New("serve: only one of --cache-dir, --cache-sqlite, --cache-s3-bucket may be set")
	}

	switch {
	case flags.cacheDir != "":
		return pagecache.NewFileStore(flags.cacheDir), nil, nil

	case flags.cacheSQLite != "":
		store, err := pagecache.NewSQLiteStore(flags.cacheSQLite)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("cache close failed", "error", err)
			}
		}, nil

	case flags.s3Bucket != "":
		client := s3.New(s3.Options{Region: flags.s3Region})
		prefix := strings.Trim(flags.s3Prefix, "/")
		return pagecache.NewS3Store(client, flags.s3Bucket, prefix), nil, nil

	default:
		return nil, nil, nil
	}
}
