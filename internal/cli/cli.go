// Package cli builds the xapiand-core command tree, following
// internal/cli.BuildCLI's structure: a cobra root command with a
// persistent --config flag, RunE subcommand handlers, and a run
// subcommand that wires every component together and blocks on a
// shutdown signal.
package cli

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xapiand/xapiand-core/internal/config"
	"github.com/xapiand/xapiand-core/internal/dbpool"
	"github.com/xapiand/xapiand-core/internal/discovery"
	"github.com/xapiand/xapiand-core/internal/localshard"
	"github.com/xapiand/xapiand-core/internal/metrics"
	"github.com/xapiand/xapiand-core/internal/raft"
	"github.com/xapiand/xapiand-core/internal/remote"
	"github.com/xapiand/xapiand-core/internal/resolver"
	"github.com/xapiand/xapiand-core/internal/walog"
	"github.com/xapiand/xapiand-core/pkg/endpoint"
)

var configFile string

// BuildCLI assembles the root command and its subcommands.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xapiand",
		Short: "xapiand-core: distributed shard coordinator",
		Long: `xapiand-core is the core server infrastructure of a distributed,
schema-aware, REST-accessible search index: a write-ahead logged database
pool, UDP gossip discovery, per-region raft leader election, and a binary
remote protocol for cross-node shard access.`,
		Version: "0.1.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildEndpointsCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start this node and join the cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(configFile)
		},
	}
}

// node bundles the running components so shutdown and the metrics
// reporter can reach them.
type node struct {
	cfg       *config.Config
	engine    *localshard.Engine
	pool      *dbpool.Pool
	disc      *discovery.Discovery
	registry  *raft.Registry
	raftSrv   *raft.Server
	remoteSrv *remote.Server
	resolver  *resolver.Resolver
	collector *metrics.Collector
}

func runNode(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("cli: %w", err)
	}

	fatalCh := make(chan string, 1)
	n, err := buildNode(cfg, fatalCh)
	if err != nil {
		return fmt.Errorf("cli: %w", err)
	}

	if cfg.Metrics.Enabled {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			if err := metrics.StartServer(addr); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
			}
		}()
	}

	n.disc.Start()
	go func() {
		if err := n.remoteSrv.Serve(); err != nil {
			fmt.Fprintf(os.Stderr, "remote protocol server stopped: %v\n", err)
		}
	}()
	go n.raftSrv.Serve()
	go n.reportMetrics()

	fmt.Printf("xapiand node %q ready: remote=%s region=%d\n", cfg.Node.Name, n.remoteSrv.Addr(), cfg.Node.Region)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("shutting down...")
	case reason := <-fatalCh:
		fmt.Printf("fatal: %s, shutting down\n", reason)
	}
	n.shutdown()
	return nil
}

func buildNode(cfg *config.Config, fatal chan<- string) (*node, error) {
	localNode := endpoint.Node{
		Name:       cfg.Node.Name,
		Host:       cfg.Node.Host,
		HTTPPort:   cfg.Node.HTTPPort,
		BinaryPort: cfg.Node.BinaryPort,
		Region:     cfg.Node.Region,
	}

	walOpts := walog.Options{
		GroupCommitWindow:   time.Duration(cfg.WAL.GroupCommitWindowMs) * time.Millisecond,
		GroupCommitMaxBatch: cfg.WAL.GroupCommitMaxBatch,
		MaxFileSize:         walog.DefaultOptions().MaxFileSize,
		MaxFileEntries:      walog.DefaultOptions().MaxFileEntries,
	}
	engine := localshard.NewEngine(cfg.WAL.Dir, walOpts)
	pool := dbpool.New(engine, cfg.DBPool.PerHashLimit)

	groupAddr, err := net.ResolveUDPAddr("udp4", cfg.Discovery.MulticastAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve multicast addr: %w", err)
	}
	var iface *net.Interface
	if cfg.Discovery.Interface != "" {
		iface, err = net.InterfaceByName(cfg.Discovery.Interface)
		if err != nil {
			return nil, fmt.Errorf("lookup interface %s: %w", cfg.Discovery.Interface, err)
		}
	}

	disc, err := discovery.New(discovery.Options{
		ClusterName:  cfg.Discovery.ClusterName,
		Group:        groupAddr,
		Interface:    iface,
		LocalNode:    localNode,
		LocalMastery: engine.Mastery,
		NameFixed:    cfg.Node.NameFixed,
		OnFatal: func(reason string) {
			select {
			case fatal <- reason:
			default:
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open discovery: %w", err)
	}

	registry := raft.NewRegistry(cfg.Node.Name, raft.NewWireTransport(3*time.Second, 3*time.Second), func(region int32, leaderID string, term int64) {
	})
	registry.Region(cfg.Node.Region, cfg.Raft.Peers)

	raftLn, err := net.Listen("tcp", cfg.Raft.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("listen raft: %w", err)
	}
	raftSrv := raft.NewServer(raftLn, registry)

	remoteSrv, err := remote.NewServer(cfg.Remote.BindAddr, pool, cfg.Remote.CheckoutWait)
	if err != nil {
		return nil, fmt.Errorf("listen remote: %w", err)
	}

	res := resolver.New(disc, disc.Table(), resolver.Options{CacheSize: cfg.Resolver.CacheSize})

	collector := metrics.NewCollector()
	pool.SetMetricsHook(func(outcome string, wait float64) { collector.RecordCheckout(outcome, wait) })
	engine.SetMetricsHook(func(seconds float64) { collector.RecordWALFsync(seconds) })

	return &node{
		cfg:       cfg,
		engine:    engine,
		pool:      pool,
		disc:      disc,
		registry:  registry,
		raftSrv:   raftSrv,
		remoteSrv: remoteSrv,
		resolver:  res,
		collector: collector,
	}, nil
}

func (n *node) reportMetrics() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		n.collector.SetDiscoveryNodes(n.disc.Table().Len())
		if e, ok := n.registry.Lookup(n.cfg.Node.Region); ok {
			_, term := e.Leader()
			n.collector.SetRaftTerm(n.cfg.Node.Region, term)
		}
	}
}

func (n *node) shutdown() {
	n.disc.Stop()
	n.registry.Stop()
	_ = n.raftSrv.Close()
	_ = n.remoteSrv.Close()
	_ = n.pool.Close()
}

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the configuration this node would start with",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			fmt.Printf("Config file:     %s\n", configFile)
			fmt.Printf("Node:            %s (%s:%d binary, :%d http), region %d\n",
				cfg.Node.Name, cfg.Node.Host, cfg.Node.BinaryPort, cfg.Node.HTTPPort, cfg.Node.Region)
			fmt.Printf("Discovery:       cluster=%s group=%s\n", cfg.Discovery.ClusterName, cfg.Discovery.MulticastAddr)
			fmt.Printf("Remote protocol: %s (checkout wait %s)\n", cfg.Remote.BindAddr, cfg.Remote.CheckoutWait)
			fmt.Printf("Raft:            %s, peers=%v\n", cfg.Raft.BindAddr, cfg.Raft.Peers)
			fmt.Printf("Database pool:   limit=%d checkout_timeout=%s\n", cfg.DBPool.PerHashLimit, cfg.DBPool.CheckoutTimeout)
			fmt.Printf("WAL:             dir=%s group_commit=%dms/%d\n", cfg.WAL.Dir, cfg.WAL.GroupCommitWindowMs, cfg.WAL.GroupCommitMaxBatch)
			if cfg.Metrics.Enabled {
				fmt.Printf("Metrics:         enabled on :%d/metrics\n", cfg.Metrics.Port)
			} else {
				fmt.Println("Metrics:         disabled")
			}
			return nil
		},
	}
}

func buildEndpointsCommand() *cobra.Command {
	var path string
	var nReplicas int

	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "Resolve a shard path to its ranked hosting endpoints",
		Long:  "Joins the cluster just long enough to probe peers and print the ranked endpoint list for a path, then exits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("--path is required")
			}
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			n, err := buildNode(cfg, make(chan string, 1))
			if err != nil {
				return err
			}
			n.disc.Start()
			defer n.disc.Stop()

			eps, err := n.resolver.Resolve(path, nReplicas, cfg.DBPool.CheckoutTimeout+3*time.Second)
			if err != nil {
				return err
			}
			for _, ep := range eps {
				fmt.Println(ep.String())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "shard path to resolve")
	cmd.Flags().IntVar(&nReplicas, "replicas", 1, "number of replicas to return")
	return cmd
}
