package notary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const registryABI = `[
	{"type":"function","name":"registerInvoice","stateMutability":"nonpayable",
	 "inputs":[{"name":"invoiceHash","type":"bytes32"}],"outputs":[]},
	{"type":"event","name":"InvoiceRegistered","anonymous":false,
	 "inputs":[
		{"name":"invoiceHash","type":"bytes32","indexed":true},
		{"name":"owner","type":"address","indexed":true},
		{"name":"timestamp","type":"uint256","indexed":false}
	 ]}
]`

// EthereumClient calls registerInvoice(bytes32) on an InvoiceRegistry contract.
type EthereumClient struct {
	client       *ethclient.Client
	contract     *bind.BoundContract
	auth         *bind.TransactOpts
	pollInterval time.Duration
	logger       *slog.Logger
}

var _ LedgerClient = (*EthereumClient)(nil)

func DialEthereum(ctx context.Context, cfg Config, logger *slog.Logger) (*EthereumClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !common.IsHexAddress(cfg.RegistryAddress) {
		return nil, fmt.Errorf("invalid registry address %q", cfg.RegistryAddress)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Endpoint, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("query chain id: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("build transactor: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}

	address := common.HexToAddress(cfg.RegistryAddress)
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	logger.Info("Connected to ledger",
		slog.String("chain_id", chainID.String()),
		slog.String("sender", auth.From.Hex()),
		slog.String("registry", address.Hex()))

	return &EthereumClient{
		client:       client,
		contract:     bind.NewBoundContract(address, parsed, client, client, client),
		auth:         auth,
		pollInterval: pollInterval,
		logger:       logger,
	}, nil
}

func (c *EthereumClient) RegisterInvoice(ctx context.Context, digest [32]byte) (string, error) {
	opts := *c.auth
	opts.Context = ctx

	tx, err := c.contract.Transact(&opts, "registerInvoice", digest)
	if err != nil {
		return "", fmt.Errorf("send registerInvoice: %w", err)
	}
	return tx.Hash().Hex(), nil
}

func (c *EthereumClient) WaitForInclusion(ctx context.Context, txRef string) (bool, error) {
	hash := common.HexToHash(txRef)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return false, fmt.Errorf("transaction %s reverted in block %s", txRef, receipt.BlockNumber)
			}
			return true, nil
		case errors.Is(err, ethereum.NotFound):
		default:
			c.logger.DebugContext(ctx, "Receipt lookup failed, retrying",
				slog.String("tx", txRef),
				slog.String("error", err.Error()))
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *EthereumClient) Close() {
	c.client.Close()
}
