package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"docsync/internal/app"
	"docsync/internal/config"
	"docsync/internal/server"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a DocSyncApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "QueueBuild", "Serve").
func newApp(ctx context.Context, operation string) (*app.DocSyncApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewDocSyncApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTimestamp(ts int64) string {
	if ts == 0 {
		return "never"
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
}

var rootCmd = &cobra.Command{
	Use:          "docsync",
	Short:        "Synchronize a documentation repository into the content store",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _ := cmd.Flags().GetString("repo")
		docs, _ := cmd.Flags().GetString("docs-subdir")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := defaults.NewConfig(repo, docs)
		cfg.Server.WebhookAccessKey = uuid.New().String()

		if err := config.Init(defaults.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Repository:  %s\n", cfg.Source.RepositoryDir)
		fmt.Printf("Webhook Key: %s\n", cfg.Server.WebhookAccessKey)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults.ConfigPath)
		fmt.Printf("Base Dir:       %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:        %s\n", cfg.LogDir)
		fmt.Printf("Docs Dir:       %s\n", cfg.Source.DocsDir())
		fmt.Printf("Queue:          %s (batch size %d)\n", cfg.Queue.Name, cfg.Queue.BatchSize)
		fmt.Printf("Cleanup Policy: %s\n", cfg.Sync.CleanupPolicy)
		fmt.Printf("Database:       %s\n", cfg.Database.Type)
		fmt.Printf("Media:          %s\n", cfg.Media.Type)
		fmt.Printf("Cache:          %s\n", cfg.Cache.Type)
		fmt.Printf("Listen:         %s\n", cfg.Server.Listen)
		return nil
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		st, err := app.MigrateDatabase(cfg)
		if err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		fmt.Printf("Database schema at version %d\n", st.Current)
		return nil
	},
}

// queue command
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the sync queue",
}

var queueBuildCmd = &cobra.Command{
	Use:   "build [DIR]",
	Short: "Rebuild the sync queue from the docs directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "QueueBuild")
		if err != nil {
			return err
		}
		defer a.Close()

		dir := ""
		if len(args) > 0 {
			dir = args[0]
		}

		summary, err := a.BuildFromPath(cmd.Context(), dir)
		if err != nil {
			return fmt.Errorf("building queue: %w", err)
		}

		fmt.Printf("Queued %d content file(s) in %d batch(es), %d redirect file(s) in %d batch(es)\n",
			summary.ContentFiles, summary.ContentBatches, summary.RedirectFiles, summary.RedirectBatches)
		fmt.Printf("%d item(s) in queue\n", summary.Items())
		return nil
	},
}

var queueRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Process queued items",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetDuration("time-limit")

		a, err := newApp(cmd.Context(), "QueueRun")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.RunQueue(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("running queue: %w", err)
		}

		fmt.Printf("Processed %d item(s)\n", n)
		return nil
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every queued item",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")

		a, err := newApp(cmd.Context(), "QueueClear")
		if err != nil {
			return err
		}
		defer a.Close()

		if !yes {
			ok, err := confirm("Remove all items from the sync queue?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted.")
				return nil
			}
		}

		if err := a.ClearQueue(cmd.Context()); err != nil {
			return fmt.Errorf("clearing queue: %w", err)
		}
		fmt.Println("Queue cleared.")
		return nil
	},
}

// confirm asks a yes/no question on an interactive stdin. Without a terminal
// there is nobody to ask, so the caller must pass --yes.
func confirm(question string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, errors.New("stdin is not a terminal; pass --yes to confirm")
	}

	fmt.Printf("%s [y/N] ", question)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "View queue status",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp(cmd.Context(), "QueueStatus")
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.QueueStatus(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(st)
		}

		fmt.Printf("Queue:         %s\n", st.Name)
		fmt.Printf("Items:         %d\n", st.Items)
		fmt.Printf("Last sync:     %s\n", formatTimestamp(st.LastSyncTimestamp))
		fmt.Printf("Last cleanup:  %s\n", formatTimestamp(st.LastCleanupTimestamp))
		fmt.Printf("Force update:  %v\n", st.ForceUpdate)
		fmt.Printf("Maintenance:   %v\n", st.MaintenanceMode)
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild the queue and process it",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetDuration("time-limit")

		a, err := newApp(cmd.Context(), "Sync")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.SyncOnce(cmd.Context(), limit)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		fmt.Printf("Processed %d item(s)\n", n)
		return nil
	},
}

// update command
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Pull the source repository and rebuild the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Update")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RequestSourceUpdate(cmd.Context()); err != nil {
			return fmt.Errorf("update failed: %w", err)
		}
		fmt.Println("Source updated and queue rebuilt.")
		return nil
	},
}

// content command
var contentCmd = &cobra.Command{
	Use:   "content",
	Short: "Inspect synced content",
}

var contentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List synced content",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		a, err := newApp(cmd.Context(), "ContentList")
		if err != nil {
			return err
		}
		defer a.Close()

		total, rows, err := a.ListContent(cmd.Context(), limit, offset)
		if err != nil {
			return err
		}
		if total == 0 {
			fmt.Println("No content synced.")
			return nil
		}

		for _, r := range rows {
			published := " "
			if !r.Published {
				published = "U"
			}
			fmt.Printf("%s #%-5d %-5s %-8s %-40s %s\n", published, r.ID, r.Locale, r.CoreVersion, r.ExternalID, r.Title)
		}
		fmt.Printf("\n%d of %d record(s)\n", len(rows), total)
		return nil
	},
}

// redirects command
var redirectsCmd = &cobra.Command{
	Use:   "redirects",
	Short: "Inspect synced redirects",
}

var redirectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List synced redirects",
	RunE: func(cmd *cobra.Command, args []string) error {
		locale, _ := cmd.Flags().GetString("locale")

		a, err := newApp(cmd.Context(), "RedirectsList")
		if err != nil {
			return err
		}
		defer a.Close()

		rows, err := a.ListRedirects(cmd.Context(), locale)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No redirects synced.")
			return nil
		}
		for _, r := range rows {
			fmt.Printf("%-5s %s -> %s\n", r.Locale, r.SourcePath, r.TargetPath)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "GetHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No sync operations recorded.")
			return nil
		}

		for _, run := range runs {
			duration := ""
			if run.FinishedAt != nil {
				duration = run.FinishedAt.Sub(run.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-12s  %s  %-8s  %5d  %-10s  %s\n",
				run.ID,
				run.Operation,
				run.StartedAt.Local().Format("2006-01-02 15:04:05"),
				run.Status,
				run.Processed,
				duration,
				run.Parameters,
			)
		}
		return nil
	},
}

// state command
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Read and write sync state",
}

var stateGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print a state value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "StateGet")
		if err != nil {
			return err
		}
		defer a.Close()

		v, ok, err := a.GetState(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("state %s is not set", args[0])
		}
		fmt.Println(v)
		return nil
	},
}

var stateSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a state value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "StateSet")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.SetState(cmd.Context(), args[0], args[1])
	},
}

var forceUpdateCmd = &cobra.Command{
	Use:       "force-update on|off",
	Short:     "Re-render unchanged files on the next run",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var on bool
		switch args[0] {
		case "on":
			on = true
		case "off":
		default:
			return fmt.Errorf("want on or off, got %q", args[0])
		}

		a, err := newApp(cmd.Context(), "ForceUpdate")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.SetForceUpdate(cmd.Context(), on); err != nil {
			return err
		}
		fmt.Printf("Force update %s\n", args[0])
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Write a consistent copy of the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "DatabaseBackup")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.BackupDatabase(args[0]); err != nil {
			return fmt.Errorf("backup failed: %w", err)
		}
		fmt.Printf("Database written to %s\n", args[0])
		return nil
	},
}

var dbSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "DatabaseSchema")
		if err != nil {
			return err
		}
		defer a.Close()

		schema, err := a.Schema(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Print(schema)
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the webhook and admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		withWatch, _ := cmd.Flags().GetBool("watch")

		a, err := newApp(cmd.Context(), "Serve")
		if err != nil {
			return err
		}
		defer a.Close()

		cfg := a.Config()
		srv := server.New(server.Config{
			Addr:             cfg.Server.Listen,
			WebhookAccessKey: cfg.Server.WebhookAccessKey,
			Media:            a.MediaHandler(),
		}, a, a.Logger())

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error { return srv.Run(ctx) })

		if interval := time.Duration(cfg.Queue.RunIntervalSeconds) * time.Second; interval > 0 {
			g.Go(func() error { return runPeriodically(ctx, a, interval) })
		}
		if withWatch {
			g.Go(func() error { return a.Watch(ctx, 0) })
		}

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// runPeriodically drains the queue every interval until ctx is done. Run
// failures are logged and retried on the next tick.
func runPeriodically(ctx context.Context, a *app.DocSyncApp, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := a.RunQueue(ctx, 0); err != nil {
				a.Logger().Error("periodic queue run failed", "error", err)
			}
		}
	}
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync whenever the docs directory changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		debounce, _ := cmd.Flags().GetDuration("debounce")

		a, err := newApp(cmd.Context(), "Watch")
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.SyncOnce(cmd.Context(), 0); err != nil {
			return fmt.Errorf("initial sync failed: %w", err)
		}

		fmt.Printf("Watching %s\n", a.Config().Source.DocsDir())
		if err := a.Watch(cmd.Context(), debounce); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("repo", "", "Path of the documentation repository checkout (default $DOCSYNC_REPOSITORY or <home>/repository)")
	configInitCmd.Flags().String("docs-subdir", "", "Directory inside the repository holding the locale directories")

	// queue subcommands
	queueCmd.AddCommand(queueBuildCmd)
	queueCmd.AddCommand(queueRunCmd)
	queueRunCmd.Flags().Duration("time-limit", 0, "Stop claiming items after this long (default from config)")
	queueCmd.AddCommand(queueClearCmd)
	queueClearCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	queueCmd.AddCommand(queueStatusCmd)
	queueStatusCmd.Flags().Bool("json", false, "Print status as JSON")

	// content and redirects subcommands
	contentCmd.AddCommand(contentListCmd)
	contentListCmd.Flags().IntP("limit", "n", 50, "Maximum number of records to show")
	contentListCmd.Flags().Int("offset", 0, "Number of records to skip")
	redirectsCmd.AddCommand(redirectsListCmd)
	redirectsListCmd.Flags().String("locale", "", "Only show redirects of this locale")

	// state subcommands
	stateCmd.AddCommand(stateGetCmd)
	stateCmd.AddCommand(stateSetCmd)
	stateCmd.AddCommand(forceUpdateCmd)

	// db subcommands
	dbCmd.AddCommand(dbBackupCmd)
	dbCmd.AddCommand(dbSchemaCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Duration("time-limit", 0, "Stop claiming items after this long (default from config)")
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(contentCmd)
	rootCmd.AddCommand(redirectsCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of operations to show")
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("watch", false, "Also sync whenever the docs directory changes")
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Duration("debounce", 0, "Quiet period before a change triggers a sync (default 2s)")
}
