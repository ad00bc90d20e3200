package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/kjannette/trahn-treasury/internal/treasury"
	"github.com/rs/zerolog"
)

// TokenLedger moves ERC-20 and native funds held by the backend wallet.
// Pulling from another holder uses transferFrom and needs a prior approval.
type TokenLedger struct {
	backend  Backend
	erc20ABI abi.ABI
	log      zerolog.Logger
}

func NewTokenLedger(backend Backend, log zerolog.Logger) (*TokenLedger, error) {
	eABI, err := abi.JSON(mustERC20ABI())
	if err != nil {
		return nil, fmt.Errorf("parse ERC20 ABI: %w", err)
	}
	return &TokenLedger{backend: backend, erc20ABI: eABI, log: log}, nil
}

func (l *TokenLedger) BalanceOf(ctx context.Context, asset, holder common.Address) (*big.Int, error) {
	return balanceOf(ctx, l.backend, l.erc20ABI, asset, holder)
}

func (l *TokenLedger) Transfer(ctx context.Context, asset, from, to common.Address, amount *big.Int) error {
	wallet := l.backend.Wallet()
	var (
		target = asset
		value  = new(big.Int)
		data   []byte
		err    error
	)
	switch {
	case asset == treasury.NativeAsset && from == wallet:
		target, value = to, amount
	case asset == treasury.NativeAsset:
		return fmt.Errorf("cannot pull native funds from %s", from.Hex())
	case from == wallet:
		data, err = l.erc20ABI.Pack("transfer", to, amount)
	default:
		data, err = l.erc20ABI.Pack("transferFrom", from, to, amount)
	}
	if err != nil {
		return fmt.Errorf("pack transfer: %w", err)
	}

	hash, err := l.backend.SignAndSend(ctx, target, value, data)
	if err != nil {
		return fmt.Errorf("transfer tx: %w", err)
	}
	receipt, err := l.backend.WaitMined(ctx, hash)
	if err != nil {
		return fmt.Errorf("transfer tx: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transfer tx %s reverted", hash.Hex())
	}
	l.log.Info().
		Str("asset", asset.Hex()).
		Str("from", from.Hex()).
		Str("to", to.Hex()).
		Str("amount", amount.String()).
		Str("tx", explorerTxPrefix+hash.Hex()).
		Msg("transfer mined")
	return nil
}
