// Package transport carries the inter-node RequestVote/AppendEntries RPC
// contract over gRPC, and the outbound peer client used by the
// replication driver, per spec section 6.
package transport

import (
	"context"
	"net"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/btmorr/raftkv/internal/consensus"
	"github.com/btmorr/raftkv/internal/raftpb"
)

// server adapts a *consensus.Node to the generated raftpb.RaftServer
// interface.
type server struct {
	raftpb.UnimplementedRaftServer
	node *consensus.Node
}

func (s *server) RequestVote(ctx context.Context, req *raftpb.VoteRequest) (*raftpb.VoteReply, error) {
	return s.node.HandleRequestVote(req), nil
}

func (s *server) AppendEntries(ctx context.Context, req *raftpb.AppendRequest) (*raftpb.AppendReply, error) {
	return s.node.HandleAppendEntries(req), nil
}

// Serve starts a gRPC server exposing node's Raft RPCs on lis, and
// returns the *grpc.Server so callers can GracefulStop it on shutdown.
func Serve(lis net.Listener, node *consensus.Node) *grpc.Server {
	s := grpc.NewServer()
	raftpb.RegisterRaftServer(s, &server{node: node})
	go func() {
		if err := s.Serve(lis); err != nil {
			log.Error().Err(err).Msg("raft gRPC server stopped")
		}
	}()
	return s
}
