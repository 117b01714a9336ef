package transport

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/btmorr/raftkv/internal/raftpb"
)

// GRPCPeer is a consensus.Peer backed by a gRPC connection to another
// cluster member, grounded on the reference codebase's ForeignNode.
type GRPCPeer struct {
	addr   string
	conn   *grpc.ClientConn
	client raftpb.RaftClient
}

// DialPeer establishes a non-blocking gRPC connection to addr ("host:port").
// Connection failures surface lazily on first RPC, consistent with spec
// section 7's "transport failures are observational" rule: a peer being
// briefly unreachable at startup must not prevent the node from running.
func DialPeer(addr string) (*GRPCPeer, error) {
	conn, err := grpc.Dial(addr, grpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", addr, err)
	}
	return &GRPCPeer{
		addr:   addr,
		conn:   conn,
		client: raftpb.NewRaftClient(conn),
	}, nil
}

func (p *GRPCPeer) RequestVote(ctx context.Context, req *raftpb.VoteRequest) (*raftpb.VoteReply, error) {
	reply, err := p.client.RequestVote(ctx, req)
	if err != nil {
		log.Debug().Err(err).Str("peer", p.addr).Msg("RequestVote RPC failed")
		return nil, err
	}
	return reply, nil
}

func (p *GRPCPeer) AppendEntries(ctx context.Context, req *raftpb.AppendRequest) (*raftpb.AppendReply, error) {
	reply, err := p.client.AppendEntries(ctx, req)
	if err != nil {
		log.Debug().Err(err).Str("peer", p.addr).Msg("AppendEntries RPC failed")
		return nil, err
	}
	return reply, nil
}

// Close releases the underlying gRPC connection.
func (p *GRPCPeer) Close() error {
	return p.conn.Close()
}
