package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"culturemap/internal/config"
	"culturemap/internal/controller"
	"culturemap/internal/culture"
	"culturemap/internal/engine"
	"culturemap/internal/geocode"
	"culturemap/internal/geom"
	"culturemap/internal/logging"
	"culturemap/internal/mapstate"
	"culturemap/internal/metrics"
	"culturemap/internal/tui"
)

var version = "dev"

var (
	configPath string
	noTiles    bool
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:          "culturemap [points-file]",
	Short:        "Browse culture points on a terminal map",
	Long:         `Shows geo-located culture points (YAML, CSV, GeoJSON or KML) on a braille map with category filters, place search and an add-point form.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         run,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "culturemap", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: culturemap.yaml in . or ./configs)")
	rootCmd.Flags().BoolVar(&noTiles, "no-tiles", false, "Disable the raster basemap")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if noTiles {
		cfg.Tiles.Enabled = false
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if len(args) == 1 {
		cfg.Points.File = args[0]
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var logOut io.Writer
	if cfg.Log.File != "" {
		f, err := tea.LogToFile(cfg.Log.File, "culturemap")
		if err != nil {
			return fmt.Errorf("open log: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	log := logging.New(cfg.Log.Level, logOut)

	points, err := loadPoints(cfg.Points.File)
	if err != nil {
		return err
	}
	store, err := mapstate.NewPointStore(points)
	if err != nil {
		return fmt.Errorf("points: %w", err)
	}
	log.Info().Int("points", store.Len()).Str("file", cfg.Points.File).Msg("points loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, logging.Component(log, "metrics")); err != nil {
				log.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	bridge := tui.NewBridge()
	eng := engine.NewTerminal(engine.Options{
		Tiles: engine.TileOptions{
			Enabled:     cfg.Tiles.Enabled,
			URL:         cfg.Tiles.URL,
			Attribution: cfg.Tiles.Attribution,
			UserAgent:   cfg.Tiles.UserAgent,
			Probe:       cfg.Tiles.Probe,
			CacheSize:   cfg.Tiles.CacheSize,
			Timeout:     cfg.Tiles.Timeout,
		},
		InitTimeout: cfg.Map.InitTimeout,
		Logger:      logging.Component(log, "engine"),
		OnRedraw:    bridge.Redraw,
	})

	searcher, closeSearcher, err := newSearcher(cfg, log)
	if err != nil {
		return err
	}
	defer closeSearcher()

	view, err := mapstate.NewViewport(geom.Coordinate{Lat: cfg.Map.Lat, Lng: cfg.Map.Lng}, cfg.Map.Zoom)
	if err != nil {
		return err
	}
	ctrl, err := controller.New(controller.Options{
		Engine:   eng,
		Store:    store,
		Viewport: view,
		Searcher: searcher,
		Debounce: cfg.Search.Debounce,
		Events:   bridge.Events(),
		Logger:   logging.Component(log, "controller"),
	})
	if err != nil {
		return err
	}
	defer ctrl.Unmount()

	allowAdd := cfg.Auth.AllowAdd
	m := tui.New(ctrl, eng, bridge, &tui.Surface{}, tui.Options{
		CanAdd:          func() bool { return allowAdd },
		OnboardingAfter: cfg.Auth.OnboardingAfter,
		Logger:          logging.Component(log, "tui"),
	})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion(), tea.WithContext(ctx))
	bridge.Attach(p.Send)

	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}

func loadPoints(path string) ([]culture.Point, error) {
	if path == "" {
		return culture.Seed()
	}
	return culture.LoadFile(path)
}

// newSearcher returns a nil Searcher when search is unconfigured, so the
// controller treats every query as having no results.
func newSearcher(cfg *config.Config, log zerolog.Logger) (geocode.Searcher, func(), error) {
	noop := func() {}
	if cfg.Search.Endpoint == "" {
		return nil, noop, nil
	}
	opts := geocode.Options{
		Endpoint:     cfg.Search.Endpoint,
		UserAgent:    cfg.Search.UserAgent,
		RadiusMeters: cfg.Search.RadiusM,
		Limit:        cfg.Search.Limit,
		Timeout:      cfg.Search.Timeout,
		MinInterval:  cfg.Search.MinInterval,
		CacheTTL:     cfg.Search.CacheTTL,
		Logger:       logging.Component(log, "geocode"),
	}
	closer := noop
	if cfg.Search.CacheAddr != "" {
		cache, err := geocode.NewValkeyCache(cfg.Search.CacheAddr)
		if err != nil {
			// search still works uncached
			log.Warn().Err(err).Str("addr", cfg.Search.CacheAddr).Msg("search cache unavailable")
		} else {
			opts.Cache = cache
			closer = cache.Close
		}
	}
	client, err := geocode.New(opts)
	if err != nil {
		closer()
		return nil, noop, err
	}
	return client, closer, nil
}
