// Command raftd runs a single Raft cluster-coordination node: a JSON-RPC
// 2.0 runtime over UDP driving a Follower/Candidate/Leader role machine.
// Modeled directly on the teacher's server/cmd/server/main.go: a cobra
// root command, a construct-then-wire run(ctx, cfg) body, and
// signal.NotifyContext for graceful shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raftkit/raftd/internal/admin"
	"github.com/raftkit/raftd/internal/bus"
	appconfig "github.com/raftkit/raftd/internal/config"
	"github.com/raftkit/raftd/internal/lifecycle"
	"github.com/raftkit/raftd/internal/logging"
	"github.com/raftkit/raftd/internal/metrics"
	"github.com/raftkit/raftd/internal/raft"
	"github.com/raftkit/raftd/internal/rpc"
	"github.com/raftkit/raftd/internal/security"
	"github.com/raftkit/raftd/internal/shipper"
	"github.com/raftkit/raftd/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "raftd",
		Short: "raftd — a single Raft cluster-coordination node",
		Long: `raftd runs the leader-election slice of Raft over a UDP JSON-RPC
transport: randomized election timeouts, heartbeat emission, and vote
tallying, with an append-only journal for current_term/voted_for.`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the node until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	appconfig.BindFlags(serveCmd)

	root.AddCommand(serveCmd)
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("raftd %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *appconfig.Config) error {
	logger, err := logging.Build(logging.Options{Level: cfg.LogLevel, Syslog: cfg.Syslog})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting raftd", zap.String("version", version), zap.Int("listen_count", len(cfg.Listen)))

	// --- 1. Journal database ---
	journal, err := store.Open(store.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer journal.Close() //nolint:errcheck

	persisted, err := journal.Load()
	if err != nil {
		return fmt.Errorf("failed to load persisted raft state: %w", err)
	}

	// --- 2. Encryption ---
	var cipher security.Cipher = security.Identity{}
	if cfg.EncryptionKey != "" {
		cipher, err = security.NewAEAD(security.NewKeyFromSecret(cfg.EncryptionKey))
		if err != nil {
			return fmt.Errorf("failed to initialize encryption: %w", err)
		}
	}

	// --- 3. Datagram endpoint ---
	endpoint, err := rpc.NewEndpoint(cfg.Listen, cfg.MaxRPCPayloadSize, logger)
	if err != nil {
		return fmt.Errorf("failed to open datagram endpoint: %w", err)
	}
	endpoint.Start()
	defer endpoint.Close()

	// --- 4. RPC runtime ---
	runtime := rpc.NewRuntime(endpoint, cipher, logger)

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)
	runtime.SetMetrics(rpc.Metrics{
		CallSent:      reg.RPCCallsSent.Inc,
		RequestRecv:   reg.RPCCallsRecv.Inc,
		OutstandingAC: func(n int) { reg.OutstandingACal.Set(float64(n)) },
		Reaped:        func(n int) { reg.ReaperTimeouts.Add(float64(n)) },
	})

	// --- 5. Raft role machine ---
	raftSvc, err := raft.NewService(runtime, cfg.Raft, endpoint.PrimaryPort(), cfg.Peers, journal, logger)
	if err != nil {
		return fmt.Errorf("failed to build raft service: %w", err)
	}
	raftSvc.SeedState(persisted)
	raftSvc.OnRoleChange(reg.ObserveRole)
	raftSvc.Start()

	go runtime.Run(ctx)

	// --- Tick bus: drives the RPC runtime's acall reaper, standing in for
	// spec §6's "Application.tick!" publish/subscribe message. ---
	tickBus := bus.New(time.Second)
	tickBus.Subscribe(runtime.OnTick)
	tickBus.Subscribe(func() { reg.Term.Set(float64(raftSvc.Term())) })
	go tickBus.Start()
	defer tickBus.Stop()

	// --- 6. Ambient lifecycle container: admin HTTP, log shipper ---
	container := lifecycle.New(logger)
	container.Register(admin.NewService(cfg.AdminAddr, admin.NewRouter(raftSvc, logger), logger))

	shipBuf := &shipper.Buffer{}
	shipSvc, err := shipper.NewService(cfg.ShipURL, shipBuf, logger)
	if err != nil {
		return fmt.Errorf("failed to build log shipper: %w", err)
	}
	container.Register(shipSvc)

	if err := container.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down raftd")

	container.Stop(context.Background())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := runtime.Shutdown(shutdownCtx); err != nil {
		logger.Warn("runtime shutdown error", zap.Error(err))
	}
	raftSvc.Stop()

	logger.Info("raftd stopped")
	return nil
}
