// Command datanode runs a single data node of the storage cluster:
// location managers, the chunk registry and session manager, the block
// cache, the job controller, the master connector, and the RPC surface
// that peers and masters drive.
//
// Logging:
//   - Base logger is created here with output format and level.
//   - Logger is passed to all components via dependency injection.
//   - No global slog configuration (no slog.SetDefault).
//   - Components scope loggers with their own attributes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof is intentionally available when --pprof flag is set
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/credentials"

	"datanode/internal/alerts"
	"datanode/internal/blockstore"
	"datanode/internal/certutil"
	"datanode/internal/chunkbody"
	"datanode/internal/chunkregistry"
	"datanode/internal/config"
	configfile "datanode/internal/config/file"
	configmem "datanode/internal/config/memory"
	"datanode/internal/jobcontroller"
	"datanode/internal/location"
	"datanode/internal/location/archival"
	"datanode/internal/logging"
	"datanode/internal/masterconn"
	"datanode/internal/nodename"
	"datanode/internal/peerconn"
	"datanode/internal/rpcserver"
	"datanode/internal/sysmetrics"
	"datanode/internal/telemetry"
)

var version = "dev"

func main() {
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(baseHandler)

	rootCmd := &cobra.Command{
		Use:   "datanode",
		Short: "Distributed storage data node",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			pprofAddr, _ := cmd.Flags().GetString("pprof")
			if pprofAddr != "" {
				go func() {
					logger.Info("pprof server listening", "addr", pprofAddr)
					pprofSrv := &http.Server{Addr: pprofAddr, Handler: nil, ReadHeaderTimeout: 10 * time.Second}
					if err := pprofSrv.ListenAndServe(); err != nil {
						logger.Error("pprof server error", "error", err)
					}
				}()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "path to config file (default: $PWD/datanode.json)")
	rootCmd.PersistentFlags().String("config-type", "file", "config store type: file or memory")
	rootCmd.PersistentFlags().String("pprof", "", "pprof HTTP server address (e.g. localhost:6060). WARNING: exposes CPU/memory profiles and goroutine dumps, bind to loopback only")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the data node",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			configType, _ := cmd.Flags().GetString("config-type")
			bootstrap, _ := cmd.Flags().GetBool("bootstrap")
			masterAddr, _ := cmd.Flags().GetString("master-addr")
			insecureMaster, _ := cmd.Flags().GetBool("insecure-master")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return run(ctx, logger, runArgs{
				configPath:     configPath,
				configType:     configType,
				bootstrap:      bootstrap,
				masterAddr:     masterAddr,
				insecureMaster: insecureMaster,
			})
		},
	}

	serveCmd.Flags().Bool("bootstrap", false, "bootstrap with default config if none exists")
	serveCmd.Flags().String("master-addr", "", "master connector's gRPC address")
	serveCmd.Flags().Bool("insecure-master", false, "skip mTLS when dialing the master (local testing only)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type runArgs struct {
	configPath     string
	configType     string
	bootstrap      bool
	masterAddr     string
	insecureMaster bool
}

func run(ctx context.Context, logger *slog.Logger, args runArgs) error {
	shutdownTelemetry := telemetry.Setup()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	cfgStore, err := openConfigStore(args.configPath, args.configType)
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}

	cfg, err := ensureConfig(ctx, logger, cfgStore, args.bootstrap)
	if err != nil {
		return err
	}
	if cfg.NodeID == "" {
		cfg.NodeID = nodename.Generate()
		if err := cfgStore.Save(ctx, cfg); err != nil {
			return fmt.Errorf("persist generated node id: %w", err)
		}
	}
	logger = logger.With("node_id", cfg.NodeID)
	logger.Info("loaded config", "locations", len(cfg.Locations), "cells", len(cfg.Cells))

	registry := chunkregistry.New(logger)

	locs, err := startLocations(ctx, cfg, registry, logger)
	if err != nil {
		return fmt.Errorf("start locations: %w", err)
	}
	defer func() {
		for _, l := range locs.byID {
			l.Stop()
		}
	}()

	readerCache, err := chunkbody.NewReaderCache(1024)
	if err != nil {
		return fmt.Errorf("new reader cache: %w", err)
	}

	store, err := blockstore.New(blockstore.Config{
		Registry: registry,
		Reader:   &multiBlockReader{registry: registry, locs: locs, cache: readerCache},
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("new block store: %w", err)
	}

	sessions := chunkregistry.NewSessionManager(registry, 5*time.Minute, logger)
	if err := sessions.StartIdleSweep(ctx, time.Minute); err != nil {
		return fmt.Errorf("start idle sweep: %w", err)
	}
	defer sessions.StopIdleSweep()

	jobs := jobcontroller.New(jobcontroller.Config{
		ReservedMemory: cfg.Limits.MemoryBytes,
	}, jobcontroller.Resource{Memory: cfg.Limits.MemoryBytes, CPU: int64(cfg.Limits.CPUCores * 1000)},
		20000, 21000, nil, nil, logger)

	tlsMgr := certutil.New()

	alertPub := alerts.New(ctx, alerts.Config{}, logger)
	defer alertPub.Close()

	var peerCreds credentials.TransportCredentials
	if !args.insecureMaster {
		peerCreds = tlsMgr.TransportCredentials("")
	}
	peers := peerconn.NewPool(peerCreds)
	defer peers.Close()

	var masterClient masterconn.MasterClient
	var connector *masterconn.Connector
	if args.masterAddr != "" {
		var creds credentials.TransportCredentials
		if !args.insecureMaster {
			creds = tlsMgr.TransportCredentials("")
		}
		client, err := masterconn.Dial(args.masterAddr, creds)
		if err != nil {
			return fmt.Errorf("dial master: %w", err)
		}
		defer client.Close()
		masterClient = client

		cellAddrs := make(map[uint16]string, len(cfg.Cells))
		for _, c := range cfg.Cells {
			if len(c.Addresses) > 0 {
				cellAddrs[c.Tag] = c.Addresses[0]
			}
		}

		statsFn := func() masterconn.NodeStats {
			return masterconn.NodeStats{
				CPUPercent:  sysmetrics.CPUPercent(),
				MemoryBytes: sysmetrics.MemoryInuse(),
				DiskBytes:   totalUsedSpace(locs),
			}
		}

		connector = masterconn.New(masterconn.Config{}, masterClient,
			&chunkEnumerator{registry: registry, locs: locs}, jobs, statsFn,
			[]string{cfg.RPCAddr}, map[string]string{"node_id": cfg.NodeID}, logger, cellAddrs)
		if err := connector.Start(ctx); err != nil {
			return fmt.Errorf("start master connector: %w", err)
		}
		defer connector.Stop()
	}

	sessionAd := &sessionAdapter{registry: registry, sessions: sessions, locs: locs, homeLoc: primaryLocationID(cfg), peers: peers}
	blockAd := &blockAdapter{store: store}
	metaAd := &metaAdapter{registry: registry}
	tableWorkAd := &tableWorkAdapter{registry: registry, locs: locs}
	precacheAd := &precacheAdapter{registry: registry, store: store, tw: tableWorkAd}

	var gate rpcserver.ConnectionGate = alwaysOnline{}
	if connector != nil {
		gate = connector
	}

	srv := rpcserver.New(rpcserver.Config{
		EgressBytesPerSec:    int(cfg.Thresholds.EgressBytesPerSec),
		BusPendingOutLimit:   cfg.Thresholds.BusPendingOutLimit,
		DiskReadPendingLimit: cfg.Thresholds.DiskReadPendingLimit,
	}, sessionAd, blockAd, metaAd, tableWorkAd, precacheAd, gate, logger)

	host, err := rpcserver.NewHost(cfg.RPCAddr, srv, nil, logger)
	if err != nil {
		return fmt.Errorf("new rpc host: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- host.Serve() }()

	logger.Info("data node started", "addr", host.Addr())

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		host.Stop(10 * time.Second)
		return nil
	case err := <-errCh:
		return err
	}
}

// alwaysOnline is the ConnectionGate used when no master address is
// configured (standalone/local testing).
type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

func primaryLocationID(cfg *config.Config) string {
	if len(cfg.Locations) == 0 {
		return ""
	}
	return cfg.Locations[0].Path
}

func totalUsedSpace(locs *locations) int64 {
	var total int64
	for _, l := range locs.byID {
		total += l.UsedSpace()
	}
	return total
}

func openConfigStore(path, storeType string) (config.Store, error) {
	if storeType == "memory" {
		return configmem.New(), nil
	}
	if path == "" {
		path = "datanode.json"
	}
	return configfile.NewStore(path), nil
}

func ensureConfig(ctx context.Context, logger *slog.Logger, store config.Store, bootstrap bool) (*config.Config, error) {
	cfg, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}
	if !bootstrap {
		return nil, fmt.Errorf("no config found (pass --bootstrap to create a default one)")
	}
	logger.Info("no config found, bootstrapping default configuration")
	if err := config.Bootstrap(ctx, store); err != nil {
		return nil, fmt.Errorf("bootstrap config: %w", err)
	}
	return store.Load(ctx)
}

func startLocations(ctx context.Context, cfg *config.Config, registry *chunkregistry.Registry, logger *slog.Logger) (*locations, error) {
	built := make([]*location.Location, 0, len(cfg.Locations))
	for i, lc := range cfg.Locations {
		watermarks := location.Watermarks{
			Low:          int64(lc.LowWatermarkPct * float64(lc.QuotaBytes)),
			High:         int64(lc.HighWatermarkPct * float64(lc.QuotaBytes)),
			TrashCleanup: lc.QuotaBytes,
		}
		id := lc.Path
		if id == "" {
			id = fmt.Sprintf("location-%d", i)
		}

		var mirror location.ArchivalMirror
		if lc.Archival.Provider == "s3" {
			client, err := archival.NewS3Client(ctx, lc.Archival.Region, lc.Archival.AccessKeyID, lc.Archival.SecretAccessKey)
			if err != nil {
				return nil, fmt.Errorf("location %s: archival client: %w", id, err)
			}
			mirror = archival.NewS3Mirror(client, lc.Archival.Bucket, lc.Archival.Prefix)
		}

		loc, err := location.New(location.Config{
			ID:              id,
			Path:            lc.Path,
			Type:            location.Store,
			Quota:           lc.QuotaBytes,
			Watermarks:      watermarks,
			Archival:        mirror,
			DataReadWorkers: 4,
			WritePoolWorkers: 4,
			Logger:          logging.Default(logger).With("location", id),
		})
		if err != nil {
			return nil, fmt.Errorf("location %s: %w", id, err)
		}
		if err := loc.Start(ctx); err != nil {
			return nil, fmt.Errorf("start location %s: %w", id, err)
		}
		built = append(built, loc)

		if descs, err := loc.Scan(ctx); err != nil {
			logger.Warn("location scan failed", "location", id, "error", err)
		} else {
			for _, d := range descs {
				chunk := chunkregistry.NewChunk(d.ID, id, nil)
				chunk.SetMeta(&chunkregistry.Meta{RowCount: d.RowCount, DiskSpace: d.DiskSpace, Sealed: d.Sealed})
				if err := registry.Register(chunk); err != nil {
					logger.Warn("duplicate chunk on scan, skipping", "chunk", d.ID.String(), "error", err)
				}
			}
		}
	}
	return newLocations(built), nil
}
