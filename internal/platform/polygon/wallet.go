// Package polygon provides the on-chain wallet client used for USDC balance
// and allowance checks and for approving the exchange to spend collateral.
package polygon

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// usdcDecimals is the number of decimals of the USDC token.
const usdcDecimals = 6

// erc20ABI covers the subset of the ERC-20 interface the gateway needs.
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// WalletClient talks to a Polygon JSON-RPC node for the gateway wallet. It is
// read-mostly; the only transaction it ever sends is an ERC-20 approve.
type WalletClient struct {
	client     *ethclient.Client
	erc20      abi.ABI
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	usdc       common.Address
	exchange   common.Address
}

// Config holds the parameters for connecting to the chain.
type Config struct {
	RPCURL          string
	PrivateKeyHex   string // hex without 0x prefix
	ChainID         int64
	USDCAddress     string
	ExchangeAddress string
}

// New dials the RPC node and derives the wallet address from the private key.
func New(cfg Config) (*WalletClient, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("polygon: dial rpc: %w", err)
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("polygon: parse private key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("polygon: parse erc20 abi: %w", err)
	}

	return &WalletClient{
		client:     client,
		erc20:      parsed,
		privateKey: key,
		address:    ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:    big.NewInt(cfg.ChainID),
		usdc:       common.HexToAddress(cfg.USDCAddress),
		exchange:   common.HexToAddress(cfg.ExchangeAddress),
	}, nil
}

// Close releases the underlying RPC connection.
func (w *WalletClient) Close() {
	w.client.Close()
}

// Address returns the wallet's checksummed address.
func (w *WalletClient) Address() string {
	return w.address.Hex()
}

// USDCBalance returns the wallet's USDC balance in whole dollars.
func (w *WalletClient) USDCBalance(ctx context.Context) (float64, error) {
	raw, err := w.callUint256(ctx, "balanceOf", w.address)
	if err != nil {
		return 0, fmt.Errorf("polygon: usdc balance: %w", err)
	}
	return fromRaw(raw), nil
}

// USDCAllowance returns the USDC amount the exchange is approved to spend.
func (w *WalletClient) USDCAllowance(ctx context.Context) (float64, error) {
	raw, err := w.callUint256(ctx, "allowance", w.address, w.exchange)
	if err != nil {
		return 0, fmt.Errorf("polygon: usdc allowance: %w", err)
	}
	return fromRaw(raw), nil
}

// ApproveUSDC approves the exchange to spend USDC on the wallet's behalf and
// returns the transaction hash. A non-positive amount approves the maximum.
func (w *WalletClient) ApproveUSDC(ctx context.Context, amount float64) (string, error) {
	var raw *big.Int
	if amount <= 0 {
		// max uint256
		raw = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	} else {
		raw = toRaw(amount)
	}

	input, err := w.erc20.Pack("approve", w.exchange, raw)
	if err != nil {
		return "", fmt.Errorf("polygon: pack approve: %w", err)
	}

	nonce, err := w.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return "", fmt.Errorf("polygon: pending nonce: %w", err)
	}
	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("polygon: suggest gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, w.usdc, big.NewInt(0), 100_000, gasPrice, input)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.privateKey)
	if err != nil {
		return "", fmt.Errorf("polygon: sign approve tx: %w", err)
	}

	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("polygon: send approve tx: %w", err)
	}
	return signed.Hash().Hex(), nil
}

func (w *WalletClient) callUint256(ctx context.Context, method string, args ...any) (*big.Int, error) {
	input, err := w.erc20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	out, err := w.client.CallContract(ctx, ethereum.CallMsg{
		To:   &w.usdc,
		Data: input,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	results, err := w.erc20.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%s: empty result", method)
	}
	value, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", method, results[0])
	}
	return value, nil
}

func fromRaw(raw *big.Int) float64 {
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(raw),
		big.NewFloat(math.Pow10(usdcDecimals)),
	).Float64()
	return f
}

func toRaw(amount float64) *big.Int {
	raw, _ := new(big.Float).Mul(
		big.NewFloat(amount),
		big.NewFloat(math.Pow10(usdcDecimals)),
	).Int(nil)
	return raw
}
