// Package chain submits trade commitments to the on-chain trading contract
// and waits for their receipts.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/arbagent/internal/domain"
)

// tradingABI is the subset of the trading contract the agent calls.
const tradingABI = `[
  {
    "type": "function",
    "name": "executeTrade",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "agent", "type": "address"},
      {"name": "asset", "type": "address"},
      {"name": "amount", "type": "uint256"},
      {"name": "price", "type": "uint256"},
      {"name": "isBuy", "type": "bool"},
      {"name": "decisionHash", "type": "bytes32"},
      {"name": "proof", "type": "bytes"}
    ],
    "outputs": []
  }
]`

// Backend is the node RPC surface used by the contract client.
// *ethclient.Client satisfies it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config configures the contract client.
type Config struct {
	Contract       string
	ChainID        int64
	GasLimit       uint64 // fallback when estimation fails; 0 disables the fallback
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// TradingContract signs and broadcasts executeTrade transactions.
type TradingContract struct {
	backend  Backend
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	signer   types.Signer
	cfg      Config
	logger   *slog.Logger
}

// Dial connects to rpcURL and returns a contract client plus a closer for the
// underlying RPC connection.
func Dial(ctx context.Context, rpcURL string, cfg Config, key *ecdsa.PrivateKey, logger *slog.Logger) (*TradingContract, func(), error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	tc, err := NewTradingContract(client, cfg, key, logger)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return tc, client.Close, nil
}

// NewTradingContract creates a client over an existing backend.
func NewTradingContract(backend Backend, cfg Config, key *ecdsa.PrivateKey, logger *slog.Logger) (*TradingContract, error) {
	if !common.IsHexAddress(cfg.Contract) {
		return nil, fmt.Errorf("chain: invalid contract address %q", cfg.Contract)
	}
	if key == nil {
		return nil, errors.New("chain: signing key is required")
	}
	if cfg.ChainID <= 0 {
		return nil, fmt.Errorf("chain: invalid chain id %d", cfg.ChainID)
	}
	parsed, err := abi.JSON(strings.NewReader(tradingABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse abi: %w", err)
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &TradingContract{
		backend:  backend,
		abi:      parsed,
		contract: common.HexToAddress(cfg.Contract),
		key:      key,
		from:     ethcrypto.PubkeyToAddress(key.PublicKey),
		signer:   types.LatestSignerForChainID(big.NewInt(cfg.ChainID)),
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "trading_contract")),
	}, nil
}

// From returns the sending account.
func (c *TradingContract) From() common.Address { return c.from }

// PackExecuteTrade ABI-encodes an executeTrade call.
func (c *TradingContract) PackExecuteTrade(call domain.TradeCall) ([]byte, error) {
	if !common.IsHexAddress(call.Agent) {
		return nil, fmt.Errorf("chain: %w: agent %q is not an address", domain.ErrInvalidInput, call.Agent)
	}
	if !common.IsHexAddress(call.AssetAddress) {
		return nil, fmt.Errorf("chain: %w: asset %q is not an address", domain.ErrInvalidInput, call.AssetAddress)
	}
	if call.Amount == nil || call.Price == nil {
		return nil, fmt.Errorf("chain: %w: amount and price are required", domain.ErrInvalidInput)
	}
	hashBytes, err := hexutil.Decode(call.DecisionHash)
	if err != nil || len(hashBytes) != common.HashLength {
		return nil, fmt.Errorf("chain: %w: decision hash %q is not 32 bytes", domain.ErrInvalidInput, call.DecisionHash)
	}
	proof := call.Proof
	if proof == nil {
		proof = []byte{}
	}
	return c.abi.Pack("executeTrade",
		common.HexToAddress(call.Agent),
		common.HexToAddress(call.AssetAddress),
		call.Amount,
		call.Price,
		call.IsBuy,
		common.BytesToHash(hashBytes),
		proof,
	)
}

// ExecuteTrade signs and broadcasts an executeTrade transaction.
func (c *TradingContract) ExecuteTrade(ctx context.Context, call domain.TradeCall) (domain.SubmittedTx, error) {
	data, err := c.PackExecuteTrade(call)
	if err != nil {
		return nil, err
	}

	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("chain: pending nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: suggest gas price: %w", err)
	}
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: c.from,
		To:   &c.contract,
		Data: data,
	})
	if err != nil {
		if c.cfg.GasLimit == 0 {
			return nil, fmt.Errorf("chain: estimate gas: %w", err)
		}
		c.logger.Warn("gas estimation failed, using configured limit",
			slog.Uint64("gas_limit", c.cfg.GasLimit),
			slog.String("error", err.Error()),
		)
		gas = c.cfg.GasLimit
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &c.contract,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		return nil, fmt.Errorf("chain: sign tx: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("chain: send tx: %w", err)
	}

	c.logger.Info("executeTrade submitted",
		slog.String("tx_hash", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", gas),
	)
	return &pendingTx{contract: c, hash: signed.Hash()}, nil
}

// pendingTx polls for the receipt of a broadcast transaction.
type pendingTx struct {
	contract *TradingContract
	hash     common.Hash
}

func (p *pendingTx) Hash() string { return p.hash.Hex() }

// Wait polls until the receipt is available, the confirmation timeout
// elapses, or ctx is done. A reverted transaction is an error.
func (p *pendingTx) Wait(ctx context.Context) (domain.TxReceipt, error) {
	c := p.contract
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, p.hash)
		switch {
		case err == nil && receipt != nil:
			out := domain.TxReceipt{
				TxHash: receipt.TxHash.Hex(),
				Status: receipt.Status,
			}
			if receipt.BlockNumber != nil {
				out.BlockNumber = receipt.BlockNumber.Uint64()
			}
			if out.TxHash == (common.Hash{}).Hex() {
				out.TxHash = p.hash.Hex()
			}
			if receipt.Status != types.ReceiptStatusSuccessful {
				return out, fmt.Errorf("chain: tx %s reverted", p.hash.Hex())
			}
			return out, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			if ctx.Err() == nil {
				c.logger.Debug("receipt poll failed", slog.String("tx_hash", p.hash.Hex()), slog.String("error", err.Error()))
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return domain.TxReceipt{}, fmt.Errorf("chain: tx %s: %w", p.hash.Hex(), domain.ErrConfirmTimeout)
			}
			return domain.TxReceipt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
