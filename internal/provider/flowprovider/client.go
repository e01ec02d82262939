// Package flowprovider adapts the Flow blockchain access-node protocol
// into the pipeline's Provider contract: a multi-node gRPC pool with
// per-node disable/rank state and a shared rate limiter, the same
// failover shape this module's indexing predecessor used against
// Flow's sporked access-node history.
package flowprovider

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	flowgrpc "github.com/onflow/flow-go-sdk/access/grpc"
	"golang.org/x/time/rate"
)

// Client wraps a pool of Flow access-node gRPC clients with failover.
type Client struct {
	grpcClients   []*flowgrpc.Client
	nodes         []string
	disabledUntil []int64
	limiter       *rate.Limiter
	rr            uint32
}

// NewClient dials every node in nodes, tolerating individual dial
// failures as long as at least one node connects.
func NewClient(nodes []string, requestsPerSec float64, burst int) (*Client, error) {
	clients := make([]*flowgrpc.Client, 0, len(nodes))
	connected := make([]string, 0, len(nodes))
	for _, node := range nodes {
		node = strings.TrimSpace(node)
		if node == "" {
			continue
		}
		c, err := flowgrpc.NewClient(node)
		if err != nil {
			log.Printf("[flowprovider] warn: failed to connect to access node %s: %v", node, err)
			continue
		}
		clients = append(clients, c)
		connected = append(connected, node)
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("flowprovider: no access nodes reachable out of %d configured", len(nodes))
	}
	return &Client{
		grpcClients:   clients,
		nodes:         connected,
		disabledUntil: make([]int64, len(clients)),
		limiter:       rate.NewLimiter(rate.Limit(requestsPerSec), burst),
	}, nil
}

// pickNode round-robins across nodes that are not currently disabled.
func (c *Client) pickNode() int {
	now := time.Now().UnixNano()
	n := len(c.grpcClients)
	start := int(atomic.AddUint32(&c.rr, 1)) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if atomic.LoadInt64(&c.disabledUntil[idx]) <= now {
			return idx
		}
	}
	return start
}

// disableNode temporarily takes a node out of rotation after a
// connection-level failure, so a single unreachable access node
// doesn't stall every fetch behind it.
func (c *Client) disableNode(idx int, for_ time.Duration) {
	atomic.StoreInt64(&c.disabledUntil[idx], time.Now().Add(for_).UnixNano())
}

func (c *Client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// GetBlockHeaderByHeight fetches one block header, retrying across
// the node pool on transient failure.
func (c *Client) GetBlockHeaderByHeight(ctx context.Context, height uint64) (*BlockHeader, error) {
	var lastErr error
	for attempt := 0; attempt < len(c.grpcClients); attempt++ {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		idx := c.pickNode()
		header, err := c.grpcClients[idx].GetBlockHeaderByHeight(ctx, height)
		if err != nil {
			lastErr = err
			c.disableNode(idx, 10*time.Second)
			continue
		}
		return &BlockHeader{
			ID:        header.ID.String(),
			ParentID:  header.ParentID.String(),
			Height:    header.Height,
			Timestamp: header.Timestamp,
		}, nil
	}
	return nil, fmt.Errorf("flowprovider: all nodes failed for height %d: %w", height, lastErr)
}

// BlockHeader is the subset of Flow block header fields the import
// runner needs for continuity checking.
type BlockHeader struct {
	ID        string
	ParentID  string
	Height    uint64
	Timestamp time.Time
}
