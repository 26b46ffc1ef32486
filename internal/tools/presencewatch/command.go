package presencewatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/devfolio/portfolio-backend/internal/config"
	"github.com/devfolio/portfolio-backend/internal/service"
	"github.com/devfolio/portfolio-backend/internal/session"
	"github.com/devfolio/portfolio-backend/internal/tools/common"
	"github.com/devfolio/portfolio-backend/internal/tools/loadgen"
	"github.com/devfolio/portfolio-backend/internal/tools/ui"
)

type options struct {
	baseURL      string
	interval     time.Duration
	sessionStore string
	noReport     bool
	ci           bool
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "presencewatch",
		Short: "Live dashboard for who is on the site right now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.Flags().DurationVar(&opts.interval, "interval", 10*time.Second, "stats refresh interval")
	cmd.Flags().StringVar(&opts.sessionStore, "session-store", "", "path to the session id store (defaults to SESSION_STORE_PATH, then the user cache dir)")
	cmd.Flags().BoolVar(&opts.noReport, "no-report", false, "watch without reporting this terminal as present")
	cmd.AddCommand(newLoadCommand(opts))
	return cmd
}

func runWatch(ctx context.Context, opts *options) error {
	client := newAPIClient(opts.baseURL)

	if opts.ci {
		fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		stats, err := client.Stats(fetchCtx)
		details := []string{
			fmt.Sprintf("online=%d authenticated=%d anonymous=%d", stats.TotalOnline, stats.AuthenticatedUsers, stats.AnonymousUsers),
		}
		common.PrintCIResult(err == nil, "presencewatch stats", details, err)
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	defaults, err := config.LoadPresenceClient()
	if err != nil {
		return err
	}

	var tracker *service.Tracker
	if !opts.noReport {
		provider := session.NewProvider(sessionStoreFor(storePathFor(opts.sessionStore, defaults), logger), logger)
		beacon := service.NewOfflineBeacon(opts.baseURL+"/api/user-offline", client, logger)
		tracker = service.NewTracker(provider.SessionID(), trackerConfigFrom(defaults), client, beacon, logger)
		tracker.Start()
		defer tracker.Shutdown()
	}

	p := tea.NewProgram(newWatchModel(client, tracker, opts.interval))
	_, err = p.Run()
	return err
}

// trackerConfigFrom maps the environment-driven cadence knobs onto the
// tracker, keeping this terminal in step with the browser client.
func trackerConfigFrom(pc config.PresenceClient) service.TrackerConfig {
	return service.TrackerConfig{
		HeartbeatInterval:   pc.HeartbeatInterval,
		AuthenticatedMinGap: pc.AuthenticatedMinGap,
		AnonymousMinGap:     pc.AnonymousMinGap,
		ActivityDebounce:    pc.ActivityDebounce,
		UserAgent:           "presencewatch",
		PageURL:             "/presencewatch",
	}
}

// storePathFor resolves the session store location; the flag wins over
// SESSION_STORE_PATH, and an empty result falls back to the user cache dir.
func storePathFor(flagPath string, defaults config.PresenceClient) string {
	if flagPath != "" {
		return flagPath
	}
	return defaults.SessionStorePath
}

func sessionStoreFor(path string, logger *slog.Logger) session.Store {
	if path == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			logger.Warn("cache dir unavailable, session id will not survive restarts", "error", err)
			return session.NewMemoryStore()
		}
		path = filepath.Join(cacheDir, "presencewatch", "session.json")
	}
	return session.NewFileStore(path)
}

func newLoadCommand(opts *options) *cobra.Command {
	var (
		profile     string
		duration    time.Duration
		rps         int
		concurrency int
		seed        int64
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Generate synthetic presence and contact traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			fn := func(ctx context.Context) ([]string, error) {
				result, err := loadgen.Run(ctx, loadgen.Config{
					BaseURL:     opts.baseURL,
					Profile:     profile,
					Duration:    duration,
					RPS:         rps,
					Concurrency: concurrency,
					Seed:        seed,
				})
				if err != nil {
					return nil, err
				}
				details := []string{fmt.Sprintf("total=%d failures=%d", result.TotalRequests, result.Failures)}
				for class, count := range result.ByStatusClass {
					details = append(details, fmt.Sprintf("%s=%d", class, count))
				}
				return details, nil
			}

			var details []string
			var err error
			if opts.ci {
				ctx, cancel := context.WithTimeout(cmd.Context(), duration+time.Minute)
				defer cancel()
				details, err = fn(ctx)
				common.PrintCIResult(err == nil, "presencewatch load", details, err)
			} else {
				details, err = ui.Run("generating traffic", fn)
				_ = details
			}
			return err
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "mixed", "traffic profile: heartbeat, stats, contact or mixed")
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to run")
	cmd.Flags().IntVar(&rps, "rps", 20, "requests per second")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "parallel workers")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed")
	return cmd
}
