package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/kjannette/trahn-treasury/internal/treasury"
	"github.com/rs/zerolog"
)

const explorerTxPrefix = "https://etherscan.io/tx/"

// UniswapV2 executes treasury swaps through a Uniswap V2 Router02 and quotes
// through getAmountsOut. The backend wallet is the custody account, so it
// must be both payer and recipient of every swap.
type UniswapV2 struct {
	backend   Backend
	router    common.Address
	weth      common.Address
	routerABI abi.ABI
	erc20ABI  abi.ABI
	log       zerolog.Logger
}

func NewUniswapV2(backend Backend, router, weth common.Address, log zerolog.Logger) (*UniswapV2, error) {
	rABI, err := abi.JSON(mustRouterABI())
	if err != nil {
		return nil, fmt.Errorf("parse router ABI: %w", err)
	}
	eABI, err := abi.JSON(mustERC20ABI())
	if err != nil {
		return nil, fmt.Errorf("parse ERC20 ABI: %w", err)
	}
	return &UniswapV2{
		backend:   backend,
		router:    router,
		weth:      weth,
		routerABI: rABI,
		erc20ABI:  eABI,
		log:       log,
	}, nil
}

func (u *UniswapV2) ExplorerURL(txHash common.Hash) string {
	return explorerTxPrefix + txHash.Hex()
}

// Quote returns the router's expected output for a direct in->out hop.
func (u *UniswapV2) Quote(ctx context.Context, assetIn, assetOut common.Address, amountIn *big.Int) (*big.Int, error) {
	data, err := u.routerABI.Pack("getAmountsOut", amountIn, []common.Address{u.onChain(assetIn), u.onChain(assetOut)})
	if err != nil {
		return nil, fmt.Errorf("pack getAmountsOut: %w", err)
	}
	result, err := u.backend.CallContract(ctx, u.router, data)
	if err != nil {
		return nil, fmt.Errorf("getAmountsOut call: %w", err)
	}
	values, err := u.routerABI.Unpack("getAmountsOut", result)
	if err != nil {
		return nil, fmt.Errorf("unpack getAmountsOut: %w", err)
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return nil, fmt.Errorf("getAmountsOut returned %d amounts", len(amounts))
	}
	return amounts[len(amounts)-1], nil
}

// Swap submits the router call for call.Kind, waits for it to be mined and
// reports the balance movement it caused.
func (u *UniswapV2) Swap(ctx context.Context, call treasury.SwapCall) (treasury.SwapFill, error) {
	wallet := u.backend.Wallet()
	if call.Payer != wallet || call.Recipient != wallet {
		return treasury.SwapFill{}, fmt.Errorf("router wallet %s cannot swap for payer %s / recipient %s",
			wallet.Hex(), call.Payer.Hex(), call.Recipient.Hex())
	}
	if len(call.Path) < 2 {
		return treasury.SwapFill{}, fmt.Errorf("swap path needs at least two assets")
	}
	in, out := call.Path[0], call.Path[len(call.Path)-1]
	path := make([]common.Address, len(call.Path))
	for i, a := range call.Path {
		path[i] = u.onChain(a)
	}
	deadline := big.NewInt(call.Deadline.Unix())
	minOut := orZero(call.AmountOutMinimum)

	var (
		method string
		args   []any
		value  = new(big.Int)
		spend  *big.Int
	)
	switch call.Kind {
	case treasury.ExactInput:
		method, spend = "swapExactTokensForTokens", call.AmountIn
		args = []any{call.AmountIn, minOut, path, wallet, deadline}
	case treasury.ExactOutput:
		method, spend = "swapTokensForExactTokens", call.AmountInMaximum
		args = []any{call.AmountOut, call.AmountInMaximum, path, wallet, deadline}
	case treasury.ExactNativeForTokens:
		method, value = "swapExactETHForTokens", call.AmountIn
		args = []any{minOut, path, wallet, deadline}
	case treasury.ExactTokensForNative:
		method, spend = "swapExactTokensForETH", call.AmountIn
		args = []any{call.AmountIn, minOut, path, wallet, deadline}
	default:
		return treasury.SwapFill{}, fmt.Errorf("unsupported swap kind %s", call.Kind)
	}

	if spend != nil {
		if err := u.EnsureAllowance(ctx, path[0], spend); err != nil {
			return treasury.SwapFill{}, err
		}
	}

	beforeIn, err := u.balance(ctx, in, wallet)
	if err != nil {
		return treasury.SwapFill{}, err
	}
	beforeOut, err := u.balance(ctx, out, wallet)
	if err != nil {
		return treasury.SwapFill{}, err
	}

	data, err := u.routerABI.Pack(method, args...)
	if err != nil {
		return treasury.SwapFill{}, fmt.Errorf("pack %s: %w", method, err)
	}
	receipt, err := u.send(ctx, u.router, value, data, method)
	if err != nil {
		return treasury.SwapFill{}, err
	}

	afterIn, err := u.balance(ctx, in, wallet)
	if err != nil {
		return treasury.SwapFill{}, err
	}
	afterOut, err := u.balance(ctx, out, wallet)
	if err != nil {
		return treasury.SwapFill{}, err
	}

	// Native balance deltas include gas paid by the wallet.
	gas := gasCost(receipt)
	spent := new(big.Int).Sub(beforeIn, afterIn)
	if in == treasury.NativeAsset {
		spent.Sub(spent, gas)
	}
	received := new(big.Int).Sub(afterOut, beforeOut)
	if out == treasury.NativeAsset {
		received.Add(received, gas)
	}

	u.log.Info().
		Str("method", method).
		Str("tx", u.ExplorerURL(receipt.TxHash)).
		Str("amountIn", spent.String()).
		Str("amountOut", received.String()).
		Msg("router swap mined")
	return treasury.SwapFill{AmountIn: spent, AmountOut: received}, nil
}

// EnsureAllowance approves the router for the max amount when the current
// allowance on token is below required.
func (u *UniswapV2) EnsureAllowance(ctx context.Context, token common.Address, required *big.Int) error {
	data, err := u.erc20ABI.Pack("allowance", u.backend.Wallet(), u.router)
	if err != nil {
		return err
	}
	result, err := u.backend.CallContract(ctx, token, data)
	if err != nil {
		return fmt.Errorf("allowance call: %w", err)
	}
	current := new(big.Int).SetBytes(result)
	if current.Cmp(required) >= 0 {
		return nil
	}

	u.log.Info().Str("token", token.Hex()).Msg("setting router allowance")
	approveData, err := u.erc20ABI.Pack("approve", u.router, gethmath.MaxBig256)
	if err != nil {
		return err
	}
	receipt, err := u.send(ctx, token, new(big.Int), approveData, "approve")
	if err != nil {
		return err
	}
	u.log.Info().Str("tx", u.ExplorerURL(receipt.TxHash)).Msg("allowance confirmed")
	return nil
}

func (u *UniswapV2) send(ctx context.Context, to common.Address, value *big.Int, data []byte, label string) (*types.Receipt, error) {
	hash, err := u.backend.SignAndSend(ctx, to, value, data)
	if err != nil {
		return nil, fmt.Errorf("%s tx: %w", label, err)
	}
	receipt, err := u.backend.WaitMined(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("%s tx: %w", label, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%s tx %s reverted", label, hash.Hex())
	}
	return receipt, nil
}

func (u *UniswapV2) balance(ctx context.Context, asset, holder common.Address) (*big.Int, error) {
	return balanceOf(ctx, u.backend, u.erc20ABI, asset, holder)
}

// onChain maps the native sentinel to WETH for router paths.
func (u *UniswapV2) onChain(asset common.Address) common.Address {
	if asset == treasury.NativeAsset {
		return u.weth
	}
	return asset
}

// --- helpers ---

func balanceOf(ctx context.Context, b Backend, erc20 abi.ABI, asset, holder common.Address) (*big.Int, error) {
	if asset == treasury.NativeAsset {
		bal, err := b.BalanceAt(ctx, holder)
		if err != nil {
			return nil, fmt.Errorf("native balance: %w", err)
		}
		return bal, nil
	}
	data, err := erc20.Pack("balanceOf", holder)
	if err != nil {
		return nil, err
	}
	result, err := b.CallContract(ctx, asset, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call: %w", err)
	}
	return new(big.Int).SetBytes(result), nil
}

func gasCost(r *types.Receipt) *big.Int {
	if r.EffectiveGasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(r.EffectiveGasPrice, new(big.Int).SetUint64(r.GasUsed))
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
