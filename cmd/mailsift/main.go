// Command mailsift fetches mail over IMAP, filters it against the
// configured exclusion rules, archives what passes and records what
// was excluded for later review.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tmori/mailsift/internal/archive"
	"github.com/tmori/mailsift/internal/credential"
	"github.com/tmori/mailsift/internal/filter"
	"github.com/tmori/mailsift/internal/mailbox"
	"github.com/tmori/mailsift/internal/model"
	"github.com/tmori/mailsift/internal/normalize"
	"github.com/tmori/mailsift/internal/pipeline"
	"github.com/tmori/mailsift/internal/review"
	"github.com/tmori/mailsift/internal/sched"
	"github.com/tmori/mailsift/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "mailsift",
		Short:         "Fetch, filter and archive mail from an IMAP mailbox",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "path to the configuration file")

	root.AddCommand(newFetchCmd(&configPath))
	root.AddCommand(newCheckCmd(&configPath))
	root.AddCommand(newScheduleCmd(&configPath))
	root.AddCommand(newLoginCmd())

	return root
}

func newFetchCmd(configPath *string) *cobra.Command {
	var (
		all      bool
		sinceStr string
		days     int
		limit    int
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run one fetch-and-filter pass over the mailbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			var since time.Time
			if sinceStr != "" {
				since, err = time.ParseInLocation("2006-01-02", sinceStr, time.Local)
				if err != nil {
					return fmt.Errorf("parsing --since %q: %w", sinceStr, err)
				}
			}

			p, closeStore, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			res, err := p.Run(cmd.Context(), pipeline.Options{
				All:    all,
				Since:  since,
				Days:   days,
				Limit:  limit,
				DryRun: dryRun,
			})
			if err != nil {
				return err
			}

			fmt.Printf("candidates=%d archived=%d excluded=%d skipped=%d failed=%d\n",
				res.Candidates, res.Archived, res.Excluded, res.Skipped, res.Failed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "consider every message, not only unseen ones")
	cmd.Flags().StringVar(&sinceStr, "since", "", "only messages on or after this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&days, "days", 0, "only messages from the last N days")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of messages to fetch")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list candidates without writing anything")

	return cmd
}

func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify IMAP connectivity and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			password, err := credential.IMAPPassword()
			if err != nil {
				return fmt.Errorf("resolving IMAP password: %w", err)
			}

			client := mailbox.NewClient(cfg.IMAP, password, logger)
			if err := client.Check(cmd.Context()); err != nil {
				return err
			}

			fmt.Printf("connection to %s ok (mailbox %s)\n", cfg.IMAP.Host, cfg.IMAP.Mailbox)
			return nil
		},
	}
}

func newScheduleCmd(configPath *string) *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run fetch passes on the configured schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			p, closeStore, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			run := func(ctx context.Context) (pipeline.Result, error) {
				return p.Run(ctx, pipeline.Options{Limit: cfg.Schedule.Limit})
			}

			poller := sched.New(run, cfg.Schedule, logger)
			poller.Start()
			defer poller.Stop()

			if runNow {
				poller.TriggerNow()
			}

			logger.Info().
				Strs("times", cfg.Schedule.Times).
				Int("interval_sec", cfg.Schedule.IntervalSec).
				Msg("scheduler started")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			logger.Info().Msg("scheduler stopping")
			return nil
		},
	}

	cmd.Flags().BoolVar(&runNow, "now", false, "trigger a run immediately on startup")
	return cmd
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store the IMAP password in the system keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print("IMAP password: ")
			reader := bufio.NewReader(cmd.InOrStdin())
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading password: %w", err)
			}

			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				return fmt.Errorf("password must not be empty")
			}

			if err := credential.Set(credential.PasswordKey, password); err != nil {
				return err
			}
			fmt.Println("password stored")
			return nil
		},
	}
}

// setup loads the configuration, prepares the data directories and
// builds the logger. The returned cleanup closes the log file.
func setup(configPath string) (*model.AppConfig, zerolog.Logger, func(), error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, zerolog.Nop(), nil, err
	}

	logger, cleanup := setupLogger(cfg)
	return cfg, logger, cleanup, nil
}

// setupLogger writes human-readable logs to stderr and, when the log
// directory is usable, JSON logs to a per-day file.
func setupLogger(cfg *model.AppConfig) (zerolog.Logger, func()) {
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	logPath := filepath.Join(cfg.LogDir(), "mailsift_"+time.Now().Format("20060102")+".log")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := zerolog.New(console).With().Timestamp().Logger()
		logger.Warn().Err(err).Str("path", logPath).Msg("file logging disabled")
		return logger, func() {}
	}

	var out io.Writer = zerolog.MultiLevelWriter(console, file)
	logger := zerolog.New(out).With().Timestamp().Logger()
	return logger, func() { _ = file.Close() }
}

// buildPipeline assembles the pipeline from the configuration. The
// returned closer releases the message index.
func buildPipeline(cfg *model.AppConfig, logger zerolog.Logger) (*pipeline.Pipeline, func(), error) {
	password, err := credential.IMAPPassword()
	if err != nil {
		return nil, nil, fmt.Errorf("resolving IMAP password: %w", err)
	}

	index, err := store.NewSQLiteStore(cfg.IndexPath())
	if err != nil {
		return nil, nil, err
	}

	engine := filter.NewEngine(
		filter.NewRules(cfg.Filter.BlockedExtensions, cfg.Filter.Keywords),
		normalize.Options{
			ToHalfWidth: cfg.Normalization.ToHalfWidth,
			UnifyKana:   cfg.Normalization.UnifyKana,
			TrimSpaces:  cfg.Normalization.TrimSpaces,
		},
		logger,
	)

	p := pipeline.New(
		mailbox.NewClient(cfg.IMAP, password, logger),
		engine,
		archive.NewWriter(cfg.ArchiveDir(), logger),
		review.NewRecorder(cfg.ReviewDir(), logger),
		index,
		logger,
	)

	closer := func() {
		if err := index.Close(); err != nil {
			logger.Warn().Err(err).Msg("closing message index")
		}
	}
	return p, closer, nil
}
