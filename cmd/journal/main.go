package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/optjournal/optjournal/internal/config"
	"github.com/optjournal/optjournal/internal/dashboard"
	"github.com/optjournal/optjournal/internal/journal"
	"github.com/optjournal/optjournal/internal/models"
	"github.com/optjournal/optjournal/internal/stats"
	"github.com/optjournal/optjournal/internal/storage"
	"github.com/optjournal/optjournal/internal/tastytrade"
	"github.com/optjournal/optjournal/internal/tracklog"
)

const usage = `Usage: journal <command> [flags]

Commands:
  import   parse broker transaction exports and update positions
  track    snapshot open positions from the live positions export
  close    close a position manually with a realized PnL
  stats    print the performance summary over closed trades
  serve    run the dashboard server

Run 'journal <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// Optional .env for things like $JOURNAL_DATA in config.yaml
	_ = godotenv.Load()

	var err error
	switch os.Args[1] {
	case "import":
		err = runImport(os.Args[2:])
	case "track":
		err = runTrack(os.Args[2:])
	case "close":
		err = runClose(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "journal: unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "journal: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the shared pieces every command needs.
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
	store  *storage.FileStore
	log    *tracklog.Store
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Environment.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	store, err := storage.NewFileStore(cfg.Storage.PositionsDir, cfg.Storage.ArchiveDir, logger)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Tracking.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating tracking db dir: %w", err)
		}
	}
	log, err := tracklog.Open(cfg.Tracking.DBPath)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, store: store, log: log}, nil
}

func (a *app) Close() {
	if err := a.log.Close(); err != nil {
		a.logger.WithError(err).Warn("closing tracking db")
	}
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to configuration file")
	yes := fs.Bool("yes", false, "apply all proposals without prompting")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	files := fs.Args()
	if len(files) == 0 {
		files, err = defaultImportFiles(a.cfg.Imports.TransactionsDir)
		if err != nil {
			return err
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no transaction files given and none found in %s", a.cfg.Imports.TransactionsDir)
	}

	reader := tastytrade.NewTransactionReader(a.logger)
	var events []models.LegEvent
	for _, path := range files {
		f, err := os.Open(path) // #nosec G304 -- user-supplied export path
		if err != nil {
			return err
		}
		parsed, err := reader.Read(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		a.logger.WithFields(logrus.Fields{"file": path, "events": len(parsed)}).Info("parsed export")
		events = append(events, parsed...)
	}

	eng := journal.NewEngine(a.store, a.log, a.logger)
	confirm := newConfirmer(*yes)

	applied, skipped, failed := 0, 0, 0
	for _, batch := range journal.GroupBatches(events) {
		proposals, err := eng.Plan(batch)
		if err != nil {
			// One bad batch must not stop the rest of the import.
			a.logger.WithError(err).WithFields(logrus.Fields{
				"date": batch.TradeDate.Format(models.DateLayout),
				"root": batch.Root,
			}).Error("could not plan batch")
			failed++
			continue
		}
		for _, p := range proposals {
			if !confirm(p.Summary()) {
				skipped++
				continue
			}
			if err := eng.Commit(p); err != nil {
				a.logger.WithError(err).Error("could not apply proposal")
				failed++
				continue
			}
			fmt.Printf("applied: %s\n", p.Summary())
			applied++
		}
	}

	fmt.Printf("\n%d applied, %d skipped, %d failed\n", applied, skipped, failed)
	if failed > 0 {
		return fmt.Errorf("%d batch(es) failed", failed)
	}
	return nil
}

// defaultImportFiles lists the CSVs in the configured transactions directory.
func defaultImportFiles(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// newConfirmer returns a prompt function. With -yes it always approves.
func newConfirmer(yes bool) func(summary string) bool {
	if yes {
		return func(summary string) bool { return true }
	}
	in := bufio.NewReader(os.Stdin)
	return func(summary string) bool {
		fmt.Printf("%s\napply? [y/N] ", summary)
		line, err := in.ReadString('\n')
		if err != nil {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}
}

func runTrack(args []string) error {
	fs := flag.NewFlagSet("track", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to configuration file")
	csvPath := fs.String("csv", "", "positions export (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	path := *csvPath
	if path == "" {
		path = a.cfg.Imports.PositionsCSV
	}
	if path == "" {
		return fmt.Errorf("no positions export configured (imports.positions_csv)")
	}

	f, err := os.Open(path) // #nosec G304 -- user-supplied export path
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := tastytrade.ReadPositions(f)
	if err != nil {
		return err
	}

	open, err := a.store.ListOpen()
	if err != nil {
		return err
	}

	tracker := tracklog.NewTracker(a.log, a.logger)
	written, err := tracker.Track(context.Background(), open, rows, time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Printf("logged %d of %d open position(s)\n", written, len(open))
	return nil
}

func runClose(args []string) error {
	fs := flag.NewFlagSet("close", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to configuration file")
	id := fs.String("id", "", "position id (slug)")
	pnl := fs.String("pnl", "", "realized PnL in dollars, e.g. 125.50")
	date := fs.String("date", "", "close date YYYY-MM-DD (default today)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *pnl == "" {
		return fmt.Errorf("close requires -id and -pnl")
	}

	realized, err := decimal.NewFromString(*pnl)
	if err != nil {
		return fmt.Errorf("invalid -pnl %q: %w", *pnl, err)
	}
	closeDate := time.Now().UTC()
	if *date != "" {
		closeDate, err = time.Parse(models.DateLayout, *date)
		if err != nil {
			return fmt.Errorf("invalid -date %q: %w", *date, err)
		}
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	pos, err := a.store.Get(*id)
	if err != nil {
		return err
	}
	if pos.Status != models.StatusOpen {
		return fmt.Errorf("position %s is already closed", pos.Slug)
	}

	eng := journal.NewEngine(a.store, a.log, a.logger)
	eng.CloseManual(pos, realized, closeDate)
	if err := eng.Commit(&journal.Proposal{
		Action: journal.ActionClose,
		Target: pos.Slug,
		Result: pos,
	}); err != nil {
		return err
	}

	fmt.Printf("closed %s with PnL $%s\n", pos.Slug, realized.StringFixed(2))
	return nil
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	archived, err := a.store.ListArchived()
	if err != nil {
		return err
	}
	stats.Compute(archived).Render(os.Stdout)
	return nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to configuration file")
	addr := fs.String("addr", "", "listen address (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	listen := *addr
	if listen == "" {
		listen = a.cfg.Dashboard.ListenAddr
	}

	server := dashboard.NewServer(listen, a.store, a.log, a.logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("Shutdown signal received, stopping dashboard...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("Dashboard stopped")
	return nil
}
