package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"airfarm/internal/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	// ErrNoRPCURLsProvided indicates that no RPC URLs were provided for client creation.
	ErrNoRPCURLsProvided = errors.New("no RPC URLs provided")
	// ErrClientCreationFailed indicates that the client failed to connect to any provided node.
	ErrClientCreationFailed = errors.New("failed to connect to any provided chain node")
)

// ChainClient defines the interface for interacting with the test blockchain.
type ChainClient interface {
	Close()
	ChainID() *big.Int
	GetBalance(ctx context.Context, address common.Address) (*big.Int, error)
	GetNonce(ctx context.Context, address common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendRawTransaction(ctx context.Context, tx *types.Transaction) error
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Client wraps the go-ethereum client and provides helper methods.
type Client struct {
	ethClient *ethclient.Client
	chainID   *big.Int
	log       logger.Logger
}

var _ ChainClient = (*Client)(nil)

// NewClient creates a new chain client, trying each RPC URL until one answers.
func NewClient(ctx context.Context, rpcURLs []string, log logger.Logger) (*Client, error) {
	if len(rpcURLs) == 0 {
		return nil, ErrNoRPCURLsProvided
	}

	var lastErr error
	for i, url := range rpcURLs {
		log.Debug("Connecting to chain node", "rpc_url", url, "attempt", i+1)

		dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
		client, err := ethclient.DialContext(dialCtx, url)
		dialCancel()
		if err != nil {
			log.Warn("Failed to connect to chain node", "url", url, "error", err)
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		chainCtx, chainCancel := context.WithTimeout(ctx, 5*time.Second)
		chainID, err := client.ChainID(chainCtx)
		chainCancel()
		if err != nil {
			log.Warn("Connected but failed to fetch chain ID", "url", url, "error", err)
			client.Close()
			lastErr = err
			continue
		}

		log.Debug("Connected to chain node", "url", url, "chain_id", chainID.String())
		return &Client{ethClient: client, chainID: chainID, log: log}, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrClientCreationFailed, lastErr)
}

// Close terminates the underlying RPC connection.
func (c *Client) Close() {
	if c.ethClient != nil {
		c.ethClient.Close()
	}
}

// ChainID returns the chain ID associated with the client connection.
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// GetBalance retrieves the native token balance for a given address.
func (c *Client) GetBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	return c.ethClient.BalanceAt(ctx, address, nil)
}

// GetNonce retrieves the next nonce for an account.
func (c *Client) GetNonce(ctx context.Context, address common.Address) (uint64, error) {
	return c.ethClient.PendingNonceAt(ctx, address)
}

// SuggestGasPrice suggests a gas price for legacy transactions.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.ethClient.SuggestGasPrice(ctx)
}

// SendRawTransaction sends a signed transaction to the network.
func (c *Client) SendRawTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.ethClient.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("sending transaction failed: %w", err)
	}
	c.log.Debug("Transaction submitted", "tx_hash", tx.Hash().Hex())
	return nil
}

// WaitForReceipt waits for a transaction receipt, polling the network.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	for {
		receipt, err := c.ethClient.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("error fetching receipt: %w", err)
		}

		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
