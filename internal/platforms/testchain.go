package platforms

import (
	"context"
	"fmt"
	"math/big"

	"airfarm/internal/config"
	"airfarm/internal/evm"
	"airfarm/internal/logger"
	"airfarm/internal/types"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

const activityTestnetTx = "testnet_transaction"

// TestChain drives a wallet through the test blockchain: it checks the
// wallet's balance and submits a minimal zero-value self-transfer to keep the
// address active on chain.
type TestChain struct {
	cfg config.Chain
	log logger.Logger
}

// NewTestChain creates the test blockchain capability.
func NewTestChain(cfg config.Chain, log logger.Logger) *TestChain {
	return &TestChain{cfg: cfg, log: log}
}

// Name returns the platform identifier.
func (t *TestChain) Name() types.Platform {
	return types.PlatformTestChain
}

// Execute runs one interaction for the signer's wallet. Connectivity problems
// and an unfunded wallet are expected conditions and map to a failed result.
func (t *TestChain) Execute(ctx context.Context, signer *evm.Signer) (Result, error) {
	client, err := evm.NewClient(ctx, t.cfg.RPCURLs, t.log)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return failed(activityTestnetTx, fmt.Sprintf("chain unreachable: %v", err)), nil
	}
	defer client.Close()

	address := signer.Address()
	balance, err := client.GetBalance(ctx, address)
	if err != nil {
		return failed(activityTestnetTx, fmt.Sprintf("balance check failed: %v", err)), nil
	}
	if balance.Sign() == 0 {
		return failed(activityTestnetTx, "wallet has no test funds"), nil
	}

	nonce, err := client.GetNonce(ctx, address)
	if err != nil {
		return failed(activityTestnetTx, fmt.Sprintf("nonce fetch failed: %v", err)), nil
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return failed(activityTestnetTx, fmt.Sprintf("gas price fetch failed: %v", err)), nil
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &address,
		Value:    big.NewInt(0),
		Gas:      21000,
		GasPrice: gasPrice,
	})
	signedTx, err := signer.SignTx(tx, client.ChainID())
	if err != nil {
		return failed(activityTestnetTx, fmt.Sprintf("signing failed: %v", err)), nil
	}
	if err := client.SendRawTransaction(ctx, signedTx); err != nil {
		return failed(activityTestnetTx, fmt.Sprintf("send failed: %v", err)), nil
	}

	receipt, err := client.WaitForReceipt(ctx, signedTx.Hash())
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		// The transaction is in flight but unconfirmed; record it as pending
		// so the next cycle does not double-count it.
		return Result{
			ActivityType: activityTestnetTx,
			Status:       types.ActivityPending,
			TxReference:  signedTx.Hash().Hex(),
			Details:      fmt.Sprintf("receipt not confirmed: %v", err),
		}, nil
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return Result{
			ActivityType: activityTestnetTx,
			Status:       types.ActivityFailed,
			TxReference:  signedTx.Hash().Hex(),
			Details:      "transaction reverted on chain",
		}, nil
	}

	t.log.Debug("Testnet transaction confirmed", "wallet", address.Hex(), "tx_hash", signedTx.Hash().Hex())
	return Result{
		ActivityType: activityTestnetTx,
		Status:       types.ActivitySuccess,
		TxReference:  signedTx.Hash().Hex(),
		Details:      fmt.Sprintf("self-transfer confirmed in block %d", receipt.BlockNumber.Uint64()),
	}, nil
}
