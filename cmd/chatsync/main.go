package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjbarnes/chatsync/internal/auth"
	"github.com/alexjbarnes/chatsync/internal/config"
	apperrors "github.com/alexjbarnes/chatsync/internal/errors"
	"github.com/alexjbarnes/chatsync/internal/logging"
	"github.com/alexjbarnes/chatsync/internal/mcpserver"
	"github.com/alexjbarnes/chatsync/internal/remote"
	"github.com/alexjbarnes/chatsync/internal/scheduler"
	"github.com/alexjbarnes/chatsync/internal/server"
	"github.com/alexjbarnes/chatsync/internal/store"
	"github.com/alexjbarnes/chatsync/internal/syncer"
	"github.com/alexjbarnes/chatsync/internal/syncstate"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var Version = "dev"

const usage = `usage: chatsync <command> [flags]

commands:
  run            run the sync daemon (default)
  push [-force]  publish local changes
  pull [-force]  import the remote snapshot
  status [-json] print the sync state
  clear-error    clear the sticky last error
  export [-o f]  write the local store as a metadata document
  restore FILE   replace the local store with an exported document
  generate-key   create an MCP API key and its hash
  hash-password  bcrypt a value read from stdin
  version        print the version
`

func main() {
	cmd, args := "run", os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	// These run before config loading.
	switch cmd {
	case "hash-password":
		hashPassword()
		return
	case "generate-key":
		generateKey()
		return
	case "version":
		fmt.Println(Version)
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	}

	if err := run(cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func hashPassword() {
	fmt.Fprint(os.Stderr, "Enter value: ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		fmt.Fprintln(os.Stderr, "no input")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword(scanner.Bytes(), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(string(hash))
}

func generateKey() {
	key, err := auth.GenerateAPIKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	hash, err := auth.HashAPIKey(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("API key (give to the client): %s\n", key)
	fmt.Printf("MCP_API_KEY_HASH=%s\n", hash)
}

func run(cmd string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "run":
		return runDaemon(ctx, cfg, logger)
	case "push", "pull":
		return runSync(ctx, cfg, logger, cmd, args)
	case "status":
		return runStatus(cfg, logger, args)
	case "clear-error":
		return withApp(cfg, logger, nil, func(a *app) error {
			return a.state.ClearError()
		})
	case "export":
		return runExport(cfg, logger, args)
	case "restore":
		return runRestore(cfg, logger, args)
	}

	return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
}

// app holds the components every command needs.
type app struct {
	store  *store.Store
	state  *syncstate.Manager
	remote *remote.FS
	engine *syncer.Engine
}

func openApp(cfg *config.Config, logger *slog.Logger, policy syncer.Policy, reporter syncer.Reporter) (*app, error) {
	st, err := store.OpenAt(cfg.StatePath())
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	mgr, err := syncstate.Load(st, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("loading sync state: %w", err)
	}

	fs, err := remote.NewFS(remote.FSConfig{
		Root:      cfg.RemoteDir,
		Device:    cfg.DeviceName,
		BatchSize: cfg.UploadBatchSize,
	}, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("opening remote store: %w", err)
	}

	// The bbolt file lock keeps a second process off this store, so the
	// hub only ever sees this engine. It is kept so the wiring matches
	// engines that share a process.
	engine := syncer.New(syncer.Options{
		Local:    st,
		Remote:   fs,
		State:    mgr,
		Policy:   policy,
		Reporter: reporter,
		Hub:      syncer.NewHub(),
		Logger:   logger,
	})

	mgr.SetConnected(true)

	return &app{store: st, state: mgr, remote: fs, engine: engine}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func withApp(cfg *config.Config, logger *slog.Logger, policy syncer.Policy, fn func(*app) error) error {
	a, err := openApp(cfg, logger, policy, newTerminalReporter(os.Stderr))
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

// runDaemon recovers from interrupted runs, then keeps following the
// remote and serving MCP/metrics until ctx is cancelled.
func runDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("chatsync starting",
		slog.String("version", Version),
		slog.String("remote", cfg.RemoteDir),
		slog.String("device", cfg.DeviceName),
		slog.String("push_frequency", cfg.PushPolicy().String()),
		slog.Bool("mcp", cfg.EnableMCP),
	)

	a, err := openApp(cfg, logger, syncer.StaticPolicy{}, newLogReporter(logger))
	if err != nil {
		return err
	}
	defer a.Close()

	stopSiblings := a.engine.ListenSiblings()
	defer stopSiblings()

	sched := scheduler.New(cfg.PushPolicy(), a.state, a.engine.Push, logger)

	// A failed startup sync is recorded as the last error; the daemon
	// keeps running so the next remote change or push can recover.
	if err := a.engine.Startup(ctx); err != nil && !errors.Is(err, apperrors.ErrConflictDeclined) {
		logger.Warn("startup sync failed", slog.String("error", err.Error()))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.engine.WatchRemote(gctx, a.remote, cfg.WatchDebounce)
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	})

	g.Go(func() error {
		logTransitions(gctx, a.state, logger)
		return nil
	})

	if cfg.EnableMCP {
		keys, err := auth.NewKeys(cfg.MCPAPIKeyHash)
		if err != nil {
			return fmt.Errorf("parsing MCP_API_KEY_HASH: %w", err)
		}

		mcpLogger := logger.With(slog.String("service", "mcp"))

		mcpServer := mcp.NewServer(
			&mcp.Implementation{Name: "chatsync", Version: Version},
			nil,
		)
		mcpserver.RegisterTools(mcpServer, mcpserver.Deps{
			Engine:    a.engine,
			State:     a.state,
			Scheduler: sched,
		})

		mcpHandler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return mcpServer
		}, nil)

		mux := server.NewMux(server.MuxConfig{
			Keys:       keys,
			MCPHandler: mcpHandler,
			Status:     a.state,
			Logger:     mcpLogger,
		})

		g.Go(func() error {
			return serve(gctx, "MCP", cfg.MCPListenAddr, mux, mcpLogger)
		})
	}

	if cfg.MetricsAddr != "" {
		mux := server.NewMux(server.MuxConfig{Status: a.state, Metrics: true})

		g.Go(func() error {
			return serve(gctx, "metrics", cfg.MetricsAddr, mux, logger)
		})
	}

	return g.Wait()
}

// serve runs an HTTP server until ctx is cancelled.
func serve(ctx context.Context, name, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("starting "+name+" server", slog.String("listen", addr))

	go func() {
		<-ctx.Done()
		logger.Info("shutting down " + name + " server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server error: %w", name, err)
	}

	return nil
}

func logTransitions(ctx context.Context, mgr *syncstate.Manager, logger *slog.Logger) {
	updates, cancel := mgr.Subscribe()
	defer cancel()

	last := mgr.Snapshot().Status

	for {
		select {
		case <-ctx.Done():
			return
		case st := <-updates:
			if st.Status == last {
				continue
			}

			logger.Debug("sync status changed",
				slog.String("from", string(last)),
				slog.String("to", string(st.Status)),
				slog.String("detail", st.Detail),
			)
			last = st.Status
		}
	}
}

func runSync(ctx context.Context, cfg *config.Config, logger *slog.Logger, cmd string, args []string) error {
	fset := flag.NewFlagSet(cmd, flag.ContinueOnError)
	force := fset.Bool("force", false, "overwrite the other side without asking")
	if err := fset.Parse(args); err != nil {
		return err
	}

	policy := newTerminalPolicy(os.Stdin, os.Stderr)

	return withApp(cfg, logger, policy, func(a *app) error {
		return syncCommand(ctx, a, cmd, *force, os.Stdout, os.Stderr)
	})
}

// syncCommand settles any lock marker left by an interrupted run, then
// performs the requested push or pull and prints the resulting state.
func syncCommand(ctx context.Context, a *app, cmd string, force bool, out, errOut io.Writer) error {
	recovered, err := a.engine.Recover(ctx)
	if errors.Is(err, apperrors.ErrMalformedLock) {
		fmt.Fprintln(errOut, "lock marker removed, nothing changed")
		return nil
	}

	if err == nil {
		switch {
		case cmd == "push" && force:
			err = a.engine.ForcePush(ctx)
		case cmd == "push":
			if !a.state.Dirty() {
				if !recovered {
					fmt.Fprintln(errOut, "nothing to publish")
					return nil
				}

				break
			}

			err = a.engine.Push(ctx)
		case force:
			err = a.engine.ForcePull(ctx)
		default:
			err = a.engine.Pull(ctx)
		}
	}

	if errors.Is(err, apperrors.ErrConflictDeclined) {
		fmt.Fprintln(errOut, "cancelled, nothing changed")
		return nil
	}

	if err != nil {
		return err
	}

	return printState(out, a.state.Snapshot(), false)
}

func runStatus(cfg *config.Config, logger *slog.Logger, args []string) error {
	fset := flag.NewFlagSet("status", flag.ContinueOnError)
	asJSON := fset.Bool("json", false, "print JSON instead of YAML")
	if err := fset.Parse(args); err != nil {
		return err
	}

	return withApp(cfg, logger, nil, func(a *app) error {
		return printState(os.Stdout, a.state.Snapshot(), *asJSON)
	})
}

func printState(w io.Writer, st syncstate.State, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(st)
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()

	return enc.Encode(st)
}

func runExport(cfg *config.Config, logger *slog.Logger, args []string) error {
	fset := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fset.String("o", "", "output file (default stdout)")
	if err := fset.Parse(args); err != nil {
		return err
	}

	return withApp(cfg, logger, nil, func(a *app) error {
		exp, err := a.engine.Export()
		if err != nil {
			return err
		}

		if missing := exp.Missing(); len(missing) > 0 {
			logger.Warn("exported document references assets with no local payload",
				slog.Int("count", len(missing)))
		}

		if *out == "" {
			_, err = os.Stdout.Write(append(exp.Document, '\n'))
			return err
		}

		return os.WriteFile(*out, exp.Document, 0o600)
	})
}

func runRestore(cfg *config.Config, logger *slog.Logger, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: chatsync restore FILE")
	}

	doc, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	return withApp(cfg, logger, nil, func(a *app) error {
		if err := a.engine.Restore(doc, nil); err != nil {
			return err
		}

		fmt.Fprintln(os.Stderr, "restored; run chatsync push to publish")

		return nil
	})
}
