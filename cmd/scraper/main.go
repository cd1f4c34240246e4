// CLAUDE:SUMMARY CLI entry point for the supplier scraper: daemon (poller + HTTP API), MCP over stdio, one-shot run and site import.
// Command scraper runs the supplier catalogue scraper.
//
// Usage:
//
//	scraper -config scraper.yaml                 # daemon: schedule poller + HTTP API
//	scraper -config scraper.yaml -mcp-stdio      # daemon with MCP tools on stdin/stdout
//	scraper -db data/scraper.db -import sites.yaml
//	scraper -db data/scraper.db -once acme       # run one site now, print the record
//	scraper -hash-password 's3cret'              # bcrypt hash for http.password_hash
//
// A .env file in the working directory is loaded before flags are read.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/supplyscrape/scraper"
)

const version = "0.4.0"

type flags struct {
	configPath string
	dbPath     string
	once       string
	importPath string
	mcpStdio   bool
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "scraper: .env:", err)
	}

	var f flags
	flag.StringVar(&f.configPath, "config", "", "path to scraper.yaml config file")
	flag.StringVar(&f.dbPath, "db", "", "path to SQLite database (overrides config and SCRAPER_DB)")
	flag.StringVar(&f.once, "once", "", "run this site ID once and exit")
	flag.StringVar(&f.importPath, "import", "", "upsert sites from a YAML file and exit")
	flag.BoolVar(&f.mcpStdio, "mcp-stdio", false, "serve MCP tools on stdin/stdout")
	logLevel := flag.String("log-level", envOr("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash of a password and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*hashPassword), bcrypt.DefaultCost)
		if err != nil {
			fmt.Fprintln(os.Stderr, "scraper:", err)
			os.Exit(1)
		}
		fmt.Println(string(hash))
		return
	}

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, f); err != nil {
		logger.Error("scraper: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, f flags) error {
	cfg := &scraper.Config{}
	if f.configPath != "" {
		var err error
		if cfg, err = scraper.LoadConfigFile(f.configPath); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if f.dbPath != "" {
		cfg.DBPath = f.dbPath
	}
	if f.mcpStdio && cfg.Sinks.Stdout {
		return errors.New("sinks.stdout cannot be combined with -mcp-stdio")
	}

	svc, err := scraper.New(cfg, scraper.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer svc.Close()

	// One-shot: import.
	if f.importPath != "" {
		sites, err := scraper.LoadSitesFile(f.importPath)
		if err != nil {
			return err
		}
		n, err := svc.ImportSites(ctx, sites)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		logger.Info("scraper: sites imported", "count", n, "file", f.importPath)
		return nil
	}

	// One-shot: run.
	if f.once != "" {
		rec, err := svc.RunOnce(ctx, f.once)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return err
		}
		if rec.State != scraper.StateCompleted {
			return fmt.Errorf("run %s ended %s: %s", rec.ID, rec.State, rec.Message)
		}
		return nil
	}

	// Daemon mode.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	svc.Start(gctx)

	if cfg.HTTP.Addr != "" {
		httpSrv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           svc.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("scraper: http listening", "addr", cfg.HTTP.Addr, "auth", cfg.HTTP.User != "")
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	if f.mcpStdio {
		g.Go(func() error {
			srv := mcp.NewServer(&mcp.Implementation{Name: "scraper", Version: version}, nil)
			svc.RegisterMCP(srv)
			err := srv.Run(gctx, &mcp.StdioTransport{})
			if gctx.Err() != nil {
				return nil
			}
			if err != nil {
				return fmt.Errorf("mcp stdio: %w", err)
			}
			logger.Info("scraper: mcp session closed")
			cancel()
			return nil
		})
	}

	logger.Info("scraper: running", "db", cfg.DBPath, "version", version)
	<-gctx.Done()
	logger.Info("scraper: shutting down")
	err = g.Wait()
	svc.Wait()
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
