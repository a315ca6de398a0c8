// Package main is the lawsearch CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/catuchi/LawMadeSimple-sub002/internal/cli"
	"github.com/catuchi/LawMadeSimple-sub002/internal/config"
	"github.com/catuchi/LawMadeSimple-sub002/internal/embedding"
	"github.com/catuchi/LawMadeSimple-sub002/internal/indexer"
	"github.com/catuchi/LawMadeSimple-sub002/internal/keyword"
	"github.com/catuchi/LawMadeSimple-sub002/internal/models"
	"github.com/catuchi/LawMadeSimple-sub002/internal/search"
	"github.com/catuchi/LawMadeSimple-sub002/internal/server"
	"github.com/catuchi/LawMadeSimple-sub002/internal/storage"
	"github.com/catuchi/LawMadeSimple-sub002/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/lawsearch/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if present, and a missing default file falls back to defaults plus the
// environment. Returns the config and the path that was loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		if path == defaultConfigPath && errors.Is(err, os.ErrNotExist) {
			return config.Default(), "", nil
		}
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "backfill":
		runBackfill()
	case "stats":
		runStats()
	case "reindex-keyword":
		runReindexKeyword()
	case "migrate":
		runMigrate()
	case "version", "--version", "-v":
		fmt.Printf("lawsearch version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// Components holds the wired dependencies shared by all commands.
type Components struct {
	Store        storage.Store
	Generator    *embedding.Generator
	KeywordIndex *keyword.BleveIndex // nil unless the bleve backend is configured
	Engine       *search.Engine
	Indexer      *indexer.Indexer
}

// Close releases all resources.
func (c *Components) Close() {
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.Generator != nil {
		_ = c.Generator.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.Open(cfg.Database, cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Store: store}

	gen, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		// Search still works keyword-only; backfill reports the configuration error.
		logger.Warn("embedding generator unavailable", zap.Error(err))
	} else {
		c.Generator = gen
		logger.Debug("embedding generator ready",
			zap.String("provider", cfg.Embedding.Provider),
			zap.Int("dimensions", gen.Dimensions()))
	}

	var kw search.KeywordSearcher = store
	idxOpts := []indexer.IndexerOption{indexer.WithLogger(logger)}
	if cfg.Search.KeywordBackend == "bleve" {
		ki, err := keyword.NewBleveIndex(cfg.Search.BleveIndexPath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
		}
		c.KeywordIndex = ki
		kw = keyword.NewIndexSearcher(ki, store, nil)
		idxOpts = append(idxOpts, indexer.WithKeywordIndex(ki))
	}

	var (
		semantic search.SemanticSearcher
		queryEmb search.QueryEmbedder
		batchEmb indexer.Embedder
	)
	if c.Generator != nil {
		semantic, queryEmb, batchEmb = store, c.Generator, c.Generator
	}
	c.Engine = search.NewEngine(kw, semantic, queryEmb, cfg, search.WithLogger(logger))
	c.Indexer = indexer.NewIndexer(store, batchEmb, cfg, idxOpts...)
	return c, nil
}

// setup loads config, builds a logger and wires components for a command.
func setup(configPath string, debug bool, cliLogger bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || debug
	newLogger := utils.NewLogger
	if cliLogger {
		newLogger = utils.NewCLILogger
	}
	logger, err := newLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.String("driver", cfg.Database.Driver))

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fatalf("Failed to initialize components: %v", err)
	}
	return cfg, logger, components
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug, false)
	defer logger.Sync()
	defer components.Close()

	if err := storage.Ping(context.Background(), components.Store); err != nil {
		logger.Fatal("Database unreachable", zap.Error(err))
	}
	if err := storage.Migrate(context.Background(), components.Store); err != nil {
		logger.Fatal("Failed to migrate schema", zap.Error(err))
	}
	if components.KeywordIndex != nil {
		// Rows written while the server was down are not in the keyword index yet.
		n, err := components.Indexer.ReindexKeyword(context.Background())
		if err != nil {
			logger.Warn("Keyword index rebuild failed", zap.Error(err))
		} else {
			logger.Info("Keyword index rebuilt", zap.Int("documents", n))
		}
	}

	srv := server.NewServer(components.Engine, components.Indexer, cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	ctx, stop := signalContext()
	defer stop()
	<-ctx.Done()

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: lawsearch search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Results merge keyword and semantic matches with Reciprocal Rank Fusion.
  • Use --semantic=false for keyword-only search.
  • --semantic-weight shifts the balance (1 = semantic only, 0 = keyword only).
  • When the embedding provider is not configured, search falls back to keyword-only.

Examples:
  lawsearch search right to personal liberty
  lawsearch search --type scenario --category police "stopped at a checkpoint"
  lawsearch search --law constitution --limit 5 arrest
  lawsearch search --output json tenancy
`)
}

func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves flags after the query to the front so that
// "lawsearch search arrest -limit 5" parses like "lawsearch search -limit 5 arrest".
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL; empty searches the database directly")
	limit := fs.Int("limit", 0, "maximum results (default from config)")
	contentType := fs.String("type", "all", "content family: all, section or scenario")
	law := fs.String("law", "", "restrict sections to a law slug")
	category := fs.String("category", "", "restrict scenarios to a category")
	weight := fs.Float64("semantic-weight", -1, "semantic weight in [0,1] (default from config)")
	semantic := fs.Bool("semantic", true, "enable semantic search")
	output := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	query := &models.SearchQuery{
		Query: buildSearchQuery(fs.Args()),
		Limit: *limit,
		Filters: models.SearchFilters{
			Type:     *contentType,
			LawSlug:  *law,
			Category: *category,
		},
		SemanticEnabled: semantic,
	}
	if query.Query == "" {
		fs.Usage()
		os.Exit(1)
	}
	if *weight >= 0 {
		query.SemanticWeight = weight
	}
	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		fatalf("%v", err)
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		response, err = searchViaHTTP(*serverURL, query)
	} else {
		_, logger, components := setup(*configPath, *debug, true)
		defer logger.Sync()
		defer components.Close()
		ctx, stop := signalContext()
		defer stop()
		response, err = components.Engine.Search(ctx, query)
	}
	if err != nil {
		fatalf("Search failed: %v", err)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fatalf("Failed to write results: %v", err)
	}
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(strings.TrimRight(serverURL, "/")+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("server request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid server response: %w", err)
	}
	return &out, nil
}

// backfillTypes maps the --sections-only / --scenarios-only flags to content families.
func backfillTypes(sectionsOnly, scenariosOnly bool) ([]models.ContentType, error) {
	switch {
	case sectionsOnly && scenariosOnly:
		return nil, fmt.Errorf("--sections-only and --scenarios-only are mutually exclusive")
	case sectionsOnly:
		return []models.ContentType{models.ContentSection}, nil
	case scenariosOnly:
		return []models.ContentType{models.ContentScenario}, nil
	default:
		return models.ContentTypes, nil
	}
}

func runBackfill() {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	dryRun := fs.Bool("dry-run", false, "count stale items without embedding")
	sectionsOnly := fs.Bool("sections-only", false, "only backfill sections")
	scenariosOnly := fs.Bool("scenarios-only", false, "only backfill scenarios")
	statsOnly := fs.Bool("stats-only", false, "print embedding stats and exit")
	limit := fs.Int("limit", 0, "maximum stale items per family (0 = all)")
	output := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		fatalf("%v", err)
	}
	types, err := backfillTypes(*sectionsOnly, *scenariosOnly)
	if err != nil {
		fatalf("%v", err)
	}
	if *limit < 0 {
		fatalf("--limit must not be negative")
	}

	_, logger, components := setup(*configPath, *debug, true)
	defer logger.Sync()
	defer components.Close()
	ctx, stop := signalContext()
	defer stop()

	if *statsOnly {
		stats, err := components.Indexer.Stats(ctx)
		if err != nil {
			fatalf("Failed to read stats: %v", err)
		}
		_ = cli.WriteStats(os.Stdout, stats, format)
		return
	}

	report, err := components.Indexer.Backfill(ctx, models.BackfillOptions{Types: types, DryRun: *dryRun, Limit: *limit})
	if report != nil {
		_ = cli.WriteBackfillReport(os.Stdout, report, format)
	}
	if err != nil {
		if errors.Is(err, embedding.ErrConfigurationInvalid) {
			fatalf("Embedding configuration invalid, nothing was embedded: %v", err)
		}
		fatalf("Backfill failed: %v", err)
	}
	if n := report.FailedCount(); n > 0 {
		fatalf("%d items failed to embed", n)
	}
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		fatalf("%v", err)
	}
	_, logger, components := setup(*configPath, *debug, true)
	defer logger.Sync()
	defer components.Close()

	report, err := components.Indexer.Health(context.Background())
	if err != nil {
		fatalf("Failed to read stats: %v", err)
	}
	if err := cli.WriteHealth(os.Stdout, report, format); err != nil {
		fatalf("Failed to write stats: %v", err)
	}
}

func runReindexKeyword() {
	fs := flag.NewFlagSet("reindex-keyword", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug, true)
	defer logger.Sync()
	defer components.Close()
	if components.KeywordIndex == nil {
		fatalf("keyword_backend is %q; reindexing needs the bleve backend", cfg.Search.KeywordBackend)
	}

	ctx, stop := signalContext()
	defer stop()
	n, err := components.Indexer.ReindexKeyword(ctx)
	if err != nil {
		fatalf("Reindex failed: %v", err)
	}
	fmt.Printf("Indexed %d documents into %s\n", n, cfg.Search.BleveIndexPath)
}

func runMigrate() {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug, true)
	defer logger.Sync()
	defer components.Close()
	if err := storage.Ping(context.Background(), components.Store); err != nil {
		fatalf("Database unreachable: %v", err)
	}
	if err := storage.Migrate(context.Background(), components.Store); err != nil {
		fatalf("Migration failed: %v", err)
	}
	fmt.Printf("Schema ready (%s, %d dimensions)\n", cfg.Database.Driver, cfg.Embedding.Dimensions)
}

func printUsage() {
	fmt.Println(`lawsearch - Hybrid search over Nigerian law sections and everyday scenarios

Usage:
  lawsearch server [flags]           Start the HTTP server
  lawsearch search [flags] <query>   Search sections and scenarios
  lawsearch backfill [flags]         Embed new or changed content
  lawsearch stats [flags]            Show embedding coverage and health
  lawsearch reindex-keyword [flags]  Rebuild the bleve keyword index
  lawsearch migrate [flags]          Create or update the database schema
  lawsearch version                  Show version
  lawsearch help                     Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/lawsearch/config.yaml,
                     or ./config.yaml when present)
  --debug            Enable debug logging

Search Flags:
  --server string           Server URL; empty searches the database directly
  --limit int               Maximum results (default from config)
  --type string             all, section or scenario (default: all)
  --law string              Restrict sections to a law slug
  --category string         Restrict scenarios to a category
  --semantic-weight float   Semantic weight in [0,1] (default from config)
  --semantic                Enable semantic search (default: true)
  --output string           text or json (default: text)

Backfill Flags:
  --dry-run          Count stale items only; works without embedding credentials
  --sections-only    Only sections
  --scenarios-only   Only scenarios
  --stats-only       Print coverage and exit
  --limit int        Maximum stale items per family (default: all)
  --output string    text or json (default: text)

Stats Flags:
  --output string    text or json (default: text)

Environment:
  OPENAI_API_KEY     Embedding provider key when not set in the config file
  DATABASE_URL       Postgres DSN when not set in the config file

Examples:
  lawsearch migrate
  lawsearch backfill --dry-run
  lawsearch backfill --sections-only --limit 100
  lawsearch search "can police arrest without warrant"
  lawsearch stats --output json`)
}
