// Command docintake ingests uploaded documents into their canonical PDF form
// and maintains combined PDF artifacts per request.
//
// Usage:
//
//	docintake upload --request ID --owner NAME --protocol P --category C FILE...
//	docintake ensure --request ID
//	docintake batch --requests ID,ID,...
//	docintake health
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/clinvault/docintake/internal/config"
	"github.com/clinvault/docintake/internal/models"
	"github.com/clinvault/docintake/internal/repository"
	"github.com/clinvault/docintake/internal/services"
	"github.com/clinvault/docintake/internal/storage"
)

const uploadConcurrency = 4

func main() {
	if err := run(); err != nil {
		slog.Error("docintake failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	flags := flag.NewFlagSet("docintake", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to config file")
	requestID := flags.String("request", "", "request id")
	requestIDs := flags.StringSlice("requests", nil, "request ids for batch ensure")
	ownerName := flags.String("owner", "", "request owner name")
	protocol := flags.String("protocol", "", "request protocol number")
	processLabel := flags.String("label", "", "human-readable process label")
	categoryFlag := flags.String("category", "", "document category")

	if len(os.Args) < 2 {
		flags.Usage()
		return fmt.Errorf("missing subcommand: upload, ensure, batch or health")
	}
	subcommand := os.Args[1]
	if err := flags.Parse(os.Args[2:]); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !storage.VerifyOnStartup(cfg.Storage.Root, logger) && cfg.Storage.StartupRequired {
		return fmt.Errorf("storage root %s is not usable", cfg.Storage.Root)
	}

	repo, dir, cleanup, err := openStores(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	app := newApp(cfg, repo, dir, logger)

	switch subcommand {
	case "upload":
		req := models.RequestRef{
			ID:           *requestID,
			OwnerName:    *ownerName,
			Protocol:     *protocol,
			ProcessLabel: *processLabel,
		}
		return app.upload(ctx, req, *categoryFlag, flags.Args())
	case "ensure":
		return app.ensure(ctx, *requestID)
	case "batch":
		return app.batch(ctx, *requestIDs)
	case "health":
		return app.health()
	default:
		return fmt.Errorf("unknown subcommand %q", subcommand)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// openStores picks the metadata backend: Reindexer when a DSN is configured,
// otherwise the in-process store for single-shot local use.
func openStores(cfg *config.Config, logger *slog.Logger) (repository.DocumentRepository, repository.RequestDirectory, func(), error) {
	if cfg.Reindexer.DSN != "" {
		store, err := repository.NewReindexerStore(cfg.Reindexer.DSN, cfg.Reindexer.NamespacePrefix, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store, store.Close, nil
	}

	logger.Warn("no reindexer DSN configured, using in-memory metadata store")
	mem := repository.NewMemoryStore()
	return mem, mem, func() {}, nil
}

type app struct {
	cfg     *config.Config
	repo    repository.DocumentRepository
	dir     repository.RequestDirectory
	intake  *services.Intake
	ensurer *services.Ensurer
	checker *storage.Checker
	logger  *slog.Logger
}

func newApp(cfg *config.Config, repo repository.DocumentRepository, dir repository.RequestDirectory, logger *slog.Logger) *app {
	retry := storage.Policy{
		MaxRetries: cfg.Storage.RetryMaxAttempts,
		BaseDelay:  cfg.Storage.RetryBaseDelay,
	}
	layout := services.Layout{Root: cfg.Storage.Root}
	classifier := services.Classifier{MaxSize: cfg.Upload.MaxFileSize}
	converter := services.NewConverter(logger)
	merger := services.NewMerger(retry, logger)

	return &app{
		cfg:     cfg,
		repo:    repo,
		dir:     dir,
		intake:  services.NewIntake(classifier, converter, repo, layout, retry, logger),
		ensurer: services.NewEnsurer(repo, dir, merger, layout, retry, logger),
		checker: storage.NewChecker(cfg.Storage.Root, cfg.Storage.HealthTTL, logger),
		logger:  logger,
	}
}

func (a *app) upload(ctx context.Context, req models.RequestRef, categoryFlag string, paths []string) error {
	if req.ID == "" {
		return fmt.Errorf("--request is required")
	}
	if len(paths) == 0 {
		return fmt.Errorf("no files to upload")
	}
	category := models.Category(categoryFlag)
	if !category.Valid() || category == models.CategoryCombined {
		return fmt.Errorf("invalid --category %q", categoryFlag)
	}

	if !a.checker.Healthy() {
		return fmt.Errorf("storage root %s is unavailable, refusing uploads", a.cfg.Storage.Root)
	}

	if err := a.dir.UpsertRequest(ctx, &req); err != nil {
		return fmt.Errorf("failed to register request: %w", err)
	}

	var mu sync.Mutex
	var uploaded []*models.Document

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			doc, err := a.intake.ProcessUpload(gctx, content, path, req, category)
			if err != nil {
				return fmt.Errorf("failed to process %s: %w", path, err)
			}
			mu.Lock()
			uploaded = append(uploaded, doc)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	a.logger.Info("upload complete", "requestId", req.ID, "documents", len(uploaded))
	return printJSON(uploaded)
}

func (a *app) ensure(ctx context.Context, requestID string) error {
	if requestID == "" {
		return fmt.Errorf("--request is required")
	}

	res := a.ensurer.EnsureCombined(ctx, requestID)
	if res.Status == models.EnsureFailed {
		return res.Err
	}
	return printJSON(res)
}

func (a *app) batch(ctx context.Context, requestIDs []string) error {
	if len(requestIDs) == 0 {
		return fmt.Errorf("--requests is required")
	}

	results := a.ensurer.EnsureCombinedBatch(ctx, requestIDs)
	if err := printJSON(results); err != nil {
		return err
	}
	for id, res := range results {
		if res.Status == models.EnsureFailed {
			return fmt.Errorf("ensure failed for request %s: %w", id, res.Err)
		}
	}
	return nil
}

func (a *app) health() error {
	report := a.checker.Check(true)
	if err := printJSON(report); err != nil {
		return err
	}
	if !report.Available {
		return fmt.Errorf("storage root %s is unavailable: %s", a.cfg.Storage.Root, report.Error)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
