// Command swarmhub is a thin CLI collaborator over the tracker, seeder,
// and leecher roles: it loads configuration, starts the role the
// subcommand names, and maps the result to the exit codes named in the
// external interfaces (0 success, 2 config error, 3 tracker unreachable,
// 4 no seeders, 5 integrity failure, 130 cancelled).
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/omnicloud/swarmhub/internal/config"
	"github.com/omnicloud/swarmhub/internal/db"
	"github.com/omnicloud/swarmhub/internal/leecher"
	"github.com/omnicloud/swarmhub/internal/peer"
	"github.com/omnicloud/swarmhub/internal/seeder"
	"github.com/omnicloud/swarmhub/internal/swarmerr"
	"github.com/omnicloud/swarmhub/internal/tracker"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: swarmhub <tracker|seed|fetch> [flags]")
		os.Exit(2)
	}

	subcommand := os.Args[1]
	args := os.Args[2:]

	var err error
	switch subcommand {
	case "tracker":
		err = runTracker(args)
	case "seed":
		err = runSeed(args)
	case "fetch":
		err = runFetch(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", subcommand)
		os.Exit(2)
	}

	code := swarmerr.ExitCode(err)
	if err != nil {
		log.Printf("swarmhub %s: %v", subcommand, err)
	}
	os.Exit(code)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()
	return ctx, cancel
}

// serveDebugHTTP starts handler on addr in the background and shuts the
// server down when ctx is cancelled. Failures are logged, not fatal: these
// endpoints are diagnostic, not part of the protocol.
func serveDebugHTTP(ctx context.Context, addr string, handler http.Handler) {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	go func() {
		log.Printf("debug endpoint listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("debug endpoint %s: %v", addr, err)
		}
	}()
}

func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: load config: %v", swarmerr.ErrConfig, err)
	}
	log.Printf("config loaded: tracker=%s seeder_bind=%s download_dir=%s chunk_size=%d parallelism=%d",
		cfg.TrackerAddr, cfg.SeederBind, cfg.DownloadDir, cfg.ChunkSize, cfg.Parallelism)
	return cfg, nil
}

func runTracker(args []string) error {
	fs := flag.NewFlagSet("tracker", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a key=value config file")
	debugAddr := fs.String("debug-addr", "", "if set, serve a read-only JSON registry snapshot at http://<addr>/debug/registry")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	var audit tracker.AuditSink
	if cfg.AuditEnabled() {
		sink, err := connectAudit(cfg.DBDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
		if err != nil {
			log.Printf("audit sink disabled: %v", err)
		} else {
			audit = sink
		}
	}

	srv := tracker.NewServer(cfg.ReapInterval, cfg.LivenessTimeout, audit)
	if _, err := srv.Bind(cfg.TrackerAddr); err != nil {
		return fmt.Errorf("%w: %v", swarmerr.ErrConnectFailed, err)
	}
	defer srv.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if *debugAddr != "" {
		serveDebugHTTP(ctx, *debugAddr, srv.DebugHandler())
	}

	log.Printf("tracker listening on %s", cfg.TrackerAddr)
	if err := srv.Serve(ctx); err != nil {
		if ctx.Err() != nil {
			return swarmerr.ErrCancelled
		}
		return err
	}
	return nil
}

// connectAudit opens the audit database and ensures its schema exists,
// returning a tracker.AuditSink the caller installs into the Server.
func connectAudit(dsn string, maxOpenConns, maxIdleConns int) (tracker.AuditSink, error) {
	conn, err := db.Connect(dsn, maxOpenConns, maxIdleConns)
	if err != nil {
		return nil, err
	}
	if err := tracker.EnsureSchema(conn.DB); err != nil {
		conn.Close()
		return nil, err
	}
	return tracker.NewPostgresAudit(conn.DB), nil
}

func runSeed(args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a key=value config file")
	fileName := fs.String("file", "", "name to register the file under")
	path := fs.String("path", "", "path of the local file to seed")
	hashWorkers := fs.Int("hash-workers", 4, "parallel workers hashing chunks during ingest")
	debugAddr := fs.String("debug-addr", "", "if set, serve a read-only JSON chunk-map snapshot at http://<addr>/debug/chunkmap")
	watchDir := fs.String("watch-dir", "", "if set, auto-ingest any new or rewritten file dropped into this directory")
	fs.Parse(args)

	if *fileName == "" || *path == "" {
		return fmt.Errorf("%w: -file and -path are required", swarmerr.ErrConfig)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	p := peer.New(cfg)
	ctx, cancel := signalContext()
	defer cancel()

	if err := p.Seed(*fileName, *path, *hashWorkers); err != nil {
		return err
	}
	log.Printf("seeding %s", *fileName)

	if *debugAddr != "" {
		serveDebugHTTP(ctx, *debugAddr, p.Seeder.DebugHandler())
	}

	if *watchDir != "" {
		watcher, err := seeder.NewSeedWatcher(p.Seeder, *watchDir, cfg.ChunkSize, *hashWorkers)
		if err != nil {
			return fmt.Errorf("%w: build seed watcher: %v", swarmerr.ErrConfig, err)
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("%w: start seed watcher: %v", swarmerr.ErrConfig, err)
		}
		defer watcher.Stop()
		log.Printf("watching %s for new files to seed", *watchDir)
	}

	return p.StartSeeding(ctx)
}

func runFetch(args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a key=value config file")
	fileName := fs.String("file", "", "name of the file to download")
	expectedHash := fs.String("sha256", "", "expected whole-file SHA-256 hex digest (optional)")
	seedAfter := fs.Bool("seed-after", true, "serve the file to other peers after download completes")
	progressAddr := fs.String("progress-addr", "", "if set, serve a WebSocket progress feed at ws://<addr>/progress")
	fs.Parse(args)

	if *fileName == "" {
		return fmt.Errorf("%w: -file is required", swarmerr.ErrConfig)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	var expected *[32]byte
	if *expectedHash != "" {
		raw, err := hex.DecodeString(*expectedHash)
		if err != nil || len(raw) != 32 {
			return fmt.Errorf("%w: -sha256 must be a 64-character hex digest", swarmerr.ErrConfig)
		}
		var digest [32]byte
		copy(digest[:], raw)
		expected = &digest
	}

	p := peer.New(cfg)
	ctx, cancel := signalContext()
	defer cancel()

	var progress *leecher.ProgressBroadcaster
	if *progressAddr != "" {
		progress = leecher.NewProgressBroadcaster()
		go progress.Run()
		defer progress.Stop()

		mux := http.NewServeMux()
		mux.HandleFunc("/progress", progress.ServeHTTP)
		serveDebugHTTP(ctx, *progressAddr, mux)
	}

	if *seedAfter {
		if err := p.Seeder.Bind(cfg.SeederBind); err != nil {
			return fmt.Errorf("%w: %v", swarmerr.ErrConnectFailed, err)
		}
		go p.Seeder.Run(ctx)
	}

	downloadStart := time.Now()
	var path string
	if *seedAfter {
		path, err = p.Fetch(ctx, *fileName, expected, progress)
	} else {
		l := leecher.New(p.Client())
		path, err = l.Download(ctx, leecher.Options{
			FileName:         *fileName,
			DestDir:          cfg.DownloadDir,
			Parallelism:      cfg.Parallelism,
			RetryBudget:      cfg.RetryBudgetPerChunk,
			ChunkTimeout:     cfg.ChunkTimeout,
			DiscoveryTimeout: cfg.DiscoveryTimeout,
			ExpectedFileHash: expected,
			Progress:         progress,
		})
	}
	if err != nil {
		return err
	}
	log.Printf("downloaded %s to %s in %s", *fileName, path, time.Since(downloadStart))

	if *seedAfter {
		<-ctx.Done()
	}
	return nil
}
