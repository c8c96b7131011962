// Package chain implements the Polygon RPC integration: adaptive windowed
// log fetching for CTF Exchange OrderFilled events, event decoding, and
// block timestamp resolution.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// LogClient is the narrow RPC surface the fetcher and timestamp resolver
// need. *ethclient.Client satisfies it; tests substitute a fake provider.
type LogClient interface {
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Client wraps an ethclient connection to a Polygon JSON-RPC endpoint.
type Client struct {
	eth *ethclient.Client
}

// Dial connects to the JSON-RPC endpoint at rawURL with the given per-request
// timeout and verifies connectivity with a chain-ID call.
func Dial(ctx context.Context, rawURL string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	rpcClient, err := rpc.DialOptions(ctx, rawURL,
		rpc.WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rawURL, err)
	}

	eth := ethclient.NewClient(rpcClient)
	if _, err := eth.ChainID(ctx); err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: chain id: %w", err)
	}

	return &Client{eth: eth}, nil
}

// Eth returns the underlying ethclient, which satisfies LogClient.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

// Close shuts down the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
