// Command raftkvd runs one member of a raftkv cluster: it loads the
// cluster config, starts the Raft gRPC listener and the client HTTP
// listener, and keeps them running until told to stop.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/btmorr/raftkv/internal/api"
	"github.com/btmorr/raftkv/internal/config"
	"github.com/btmorr/raftkv/internal/consensus"
	"github.com/btmorr/raftkv/internal/store"
	"github.com/btmorr/raftkv/internal/transport"
)

func main() {
	configPath := flag.String("config", "raftkv.yaml", "path to cluster config file")
	unsafeVolatile := flag.Bool("unsafe-volatile", false,
		"skip persisting term/vote/log to disk; state is lost on restart (local experimentation only)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.Node.UnsafeVolatile = cfg.Node.UnsafeVolatile || *unsafeVolatile

	level, err := zerolog.ParseLevel(cfg.Node.LogLevel)
	if err != nil || cfg.Node.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Node.UnsafeVolatile {
		log.Warn().Str("id", cfg.Node.ID).
			Msg("running with --unsafe-volatile: term/vote/log will NOT be persisted, state is lost on restart")
	}

	self, _ := cfg.Cluster.Find(cfg.Node.ID)

	peers := make(map[string]consensus.Peer)
	var dialed []*transport.GRPCPeer
	for _, p := range cfg.Cluster.Peers {
		if p.ID == cfg.Node.ID {
			continue
		}
		gp, err := transport.DialPeer(p.RaftAddr)
		if err != nil {
			log.Error().Err(err).Str("peer", p.ID).Msg("failed to dial peer, will retry lazily")
			continue
		}
		peers[p.ID] = gp
		dialed = append(dialed, gp)
	}

	storage := consensus.NewStorage(cfg.Node.DataDir, cfg.Node.UnsafeVolatile)
	cache := store.New(cfg.Node.MaxCacheSize)

	node, err := consensus.NewNode(consensus.Config{
		ID:                 cfg.Node.ID,
		Peers:              peers,
		Storage:            storage,
		Cache:              cache,
		ElectionTimeoutMin: cfg.Timing.ElectionTimeoutMin,
		ElectionTimeoutMax: cfg.Timing.ElectionTimeoutMax,
		HeartbeatInterval:  cfg.Timing.HeartbeatInterval,
		RPCTimeout:         cfg.Timing.RPCTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct node")
	}

	ctx, cancelNode := context.WithCancel(context.Background())
	go node.Run(ctx)
	go node.RunApplyLoop(ctx)

	raftLis, err := net.Listen("tcp", self.RaftAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", self.RaftAddr).Msg("failed to bind raft listener")
	}
	grpcServer := transport.Serve(raftLis, node)

	httpServer := &http.Server{
		Addr:    cfg.Node.HTTPAddr,
		Handler: api.Router(node),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server stopped")
		}
	}()

	log.Info().
		Str("id", cfg.Node.ID).
		Str("raft_addr", self.RaftAddr).
		Str("http_addr", cfg.Node.HTTPAddr).
		Int("peers", len(peers)).
		Msg("raftkvd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received, draining")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	drainDeadline := time.Now().Add(2 * time.Second)
	for node.Status().LastApplied < node.Status().CommitIndex && time.Now().Before(drainDeadline) {
		time.Sleep(10 * time.Millisecond)
	}

	cancelNode()
	grpcServer.GracefulStop()
	for _, gp := range dialed {
		gp.Close()
	}

	log.Info().Msg("raftkvd stopped")
}
