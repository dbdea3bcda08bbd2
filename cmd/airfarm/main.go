package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"airfarm/internal/config"
	"airfarm/internal/farmer"
	"airfarm/internal/logger"
	"airfarm/internal/platform/database"
	"airfarm/internal/platforms"
	"airfarm/internal/scheduler"
	"airfarm/internal/sink"
	"airfarm/internal/storage"
	"airfarm/internal/vault"

	"github.com/joho/godotenv"
)

const usageText = `Usage: airfarm <command> [flags]

Commands:
  setup      Create the encrypted wallet collection
  run        Execute a single cycle over all wallets and platforms
  schedule   Run cycles on the configured interval until interrupted
  stats      Print the aggregated statistics view
`

func main() {
	_ = godotenv.Load()

	log := logger.NewColorLogger(logger.LevelInfo)

	defer func() {
		if r := recover(); r != nil {
			log.Fatal("Unrecoverable error (panic)", "error", r)
		}
	}()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]
	if command == "help" || command == "-h" || command == "--help" {
		fmt.Print(usageText)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrMissingRequired) || errors.Is(err, config.ErrInvalidOption) {
			log.Fatal("Configuration is incomplete", "error", err)
		}
		log.Fatal("Failed to load configuration", "error", err)
	}
	log = logger.NewColorLogger(logger.ParseLevel(cfg.LogLevel))

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		log.Fatal("Failed to create data directory", "path", cfg.DataDir, "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gracefulShutdown(cancel, log)

	switch command {
	case "setup":
		err = runSetup(cfg, args, log)
	case "run":
		err = runOnce(ctx, cfg, args, log)
	case "schedule":
		err = runSchedule(ctx, cfg, args, log)
	case "stats":
		err = runStats(ctx, cfg, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usageText)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal("Command failed", "command", command, "error", err)
	}
}

// runSetup creates the wallet collection, or lists the existing one. Creation
// is refused when the vault already holds wallets.
func runSetup(cfg *config.Config, args []string, log logger.Logger) error {
	fs := flag.NewFlagSet("setup", flag.ExitOnError)
	count := fs.Int("wallets", cfg.NumWallets, "number of wallets to generate")
	_ = fs.Parse(args)

	v, err := vault.Open(cfg.WalletFile(), cfg.MasterPassword, log)
	if err != nil {
		return err
	}

	if v.Len() > 0 {
		log.Info("Vault already holds wallets, nothing to do", "path", cfg.WalletFile(), "count", v.Len())
		printWallets(v.ListWallets())
		return nil
	}

	wallets, err := v.CreateWallets(*count)
	if err != nil {
		return err
	}
	log.Success("Wallet collection created", "path", cfg.WalletFile(), "count", len(wallets))
	printWallets(wallets)
	return nil
}

// runOnce executes exactly one cycle and reports its outcome.
func runOnce(ctx context.Context, cfg *config.Config, args []string, log logger.Logger) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	pacingPath := fs.String("pacing", "config/pacing.yml", "path to the optional pacing file")
	_ = fs.Parse(args)
	loadPacing(cfg, *pacingPath, log)

	f, store, err := buildFarmer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore(store, log)

	summary, err := f.RunCycle(ctx)
	if err != nil {
		log.Warn("Cycle was interrupted", "error", err)
	}
	printSummary(summary)
	return nil
}

// runSchedule runs cycles on the configured interval until a termination
// signal arrives.
func runSchedule(ctx context.Context, cfg *config.Config, args []string, log logger.Logger) error {
	fs := flag.NewFlagSet("schedule", flag.ExitOnError)
	pacingPath := fs.String("pacing", "config/pacing.yml", "path to the optional pacing file")
	intervalHours := fs.Int("interval", cfg.RunIntervalHours, "hours between cycles")
	noImmediate := fs.Bool("no-immediate", false, "wait out the first interval instead of running a cycle at startup")
	_ = fs.Parse(args)
	if *intervalHours < 1 {
		return fmt.Errorf("interval must be at least 1 hour, got %d", *intervalHours)
	}
	loadPacing(cfg, *pacingPath, log)

	f, store, err := buildFarmer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore(store, log)

	sched := scheduler.New(f, time.Duration(*intervalHours)*time.Hour, log)
	if err := sched.Start(ctx, !*noImmediate); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("Shutting down, letting the in-flight cycle wind down...")
	sched.Stop(30 * time.Second)
	return nil
}

// runStats prints the aggregated statistics view from the state store.
func runStats(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	store, err := database.NewStore(ctx, log, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore(store, log)

	view, err := store.QueryStats(ctx)
	if err != nil {
		return err
	}
	printStats(view)
	return nil
}

// buildFarmer wires the vault, state store, platform capabilities and
// dashboard sink into a ready farmer.
func buildFarmer(ctx context.Context, cfg *config.Config, log logger.Logger) (*farmer.Farmer, storage.Store, error) {
	v, err := vault.Open(cfg.WalletFile(), cfg.MasterPassword, log)
	if err != nil {
		if errors.Is(err, vault.ErrInvalidCredential) {
			return nil, nil, fmt.Errorf("master password does not match the wallet file: %w", err)
		}
		return nil, nil, err
	}
	if v.Len() == 0 {
		log.Warn("Vault holds no wallets; run 'airfarm setup' first", "path", cfg.WalletFile())
	}

	store, err := database.NewStore(ctx, log, cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	caps, err := platforms.FromConfig(cfg, log)
	if err != nil {
		closeStore(store, log)
		return nil, nil, err
	}

	dash := sink.New(cfg.Dashboard, log)
	return farmer.New(cfg, v, caps, store, dash, log), store, nil
}

// loadPacing layers the optional pacing file over the defaults. A missing
// file is fine; a malformed one is fatal.
func loadPacing(cfg *config.Config, path string, log logger.Logger) {
	pacing, err := config.LoadPacing(path)
	if err != nil {
		if errors.Is(err, config.ErrPacingNotFound) {
			log.Debug("No pacing file, using defaults", "path", path)
			return
		}
		log.Fatal("Failed to load pacing file", "path", path, "error", err)
	}
	log.Info("Pacing file loaded", "path", path)
	cfg.Pacing = pacing
}

func closeStore(store storage.Store, log logger.Logger) {
	if err := store.Close(); err != nil {
		log.Error("Failed to close state store", "error", err)
	}
}

func printWallets(wallets []vault.Wallet) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tADDRESS")
	for _, wl := range wallets {
		fmt.Fprintf(w, "%d\t%s\n", wl.ID, wl.Address)
	}
	_ = w.Flush()
}

func printSummary(s storage.RunSummary) {
	fmt.Printf("\nRun %s: wallets=%d succeeded=%d failed=%d duration=%s\n",
		s.Status, s.WalletsProcessed, s.ActivitiesSucceeded, s.ActivitiesFailed,
		s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	if s.ErrorSummary != "" {
		fmt.Printf("Problems: %s\n", s.ErrorSummary)
	}
}

func printStats(view *storage.StatsView) {
	fmt.Printf("Statistics as of %s (%d activities total)\n\n", view.GeneratedAt.Format(time.RFC3339), view.ActivityCount)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WALLET\tPLATFORM\tTX\tPOINTS\tLAST ACTIVITY")
	for _, ws := range view.WalletStates {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%s\n",
			ws.WalletAddress, ws.Platform, ws.TxCount, ws.Points, ws.LastActivity.Format(time.RFC3339))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "PLATFORM\tSUCCESS\tFAILURE\tLAST RUN")
	for _, ps := range view.PlatformStats {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n",
			ps.Platform, ps.SuccessCount, ps.FailureCount, ps.LastRun.Format(time.RFC3339))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "RUN\tSTATUS\tWALLETS\tOK\tFAILED\tSTARTED")
	for _, r := range view.RecentRuns {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%s\n",
			r.RunID, r.Status, r.WalletsProcessed, r.ActivitiesSucceeded, r.ActivitiesFailed,
			r.StartedAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}

// gracefulShutdown cancels the root context on SIGINT or SIGTERM.
func gracefulShutdown(cancel context.CancelFunc, log logger.Logger) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signalChan
	log.Warn("Termination signal received, cancelling...", "signal", sig.String())
	cancel()
}
