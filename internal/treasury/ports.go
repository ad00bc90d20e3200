package treasury

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAsset stands for the chain's native currency wherever an asset
// address is expected.
var NativeAsset = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// DefaultBurnSink is the conventional unspendable address.
var DefaultBurnSink = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

type SwapKind uint8

const (
	ExactInput SwapKind = iota + 1
	ExactOutput
	ExactNativeForTokens
	ExactTokensForNative
)

func (k SwapKind) String() string {
	switch k {
	case ExactInput:
		return "exact-input"
	case ExactOutput:
		return "exact-output"
	case ExactNativeForTokens:
		return "exact-native-for-tokens"
	case ExactTokensForNative:
		return "exact-tokens-for-native"
	default:
		return fmt.Sprintf("swap-kind(%d)", uint8(k))
	}
}

// ParseSwapKind is the inverse of String.
func ParseSwapKind(s string) (SwapKind, error) {
	for _, k := range []SwapKind{ExactInput, ExactOutput, ExactNativeForTokens, ExactTokensForNative} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown swap kind %q", s)
}

// ExactIn reports whether the input amount is fixed and the output floats.
func (k SwapKind) ExactIn() bool { return k != ExactOutput }

func (k SwapKind) valid() bool { return k >= ExactInput && k <= ExactTokensForNative }

// SwapCall is what the Treasury hands to the venue.
type SwapCall struct {
	Kind             SwapKind
	AssetIn          common.Address
	Path             []common.Address
	Payer            common.Address
	Recipient        common.Address
	Deadline         time.Time
	AmountIn         *big.Int
	AmountOut        *big.Int
	AmountInMaximum  *big.Int
	AmountOutMinimum *big.Int
}

// SwapFill is what the venue reports back. The Treasury accepts any values
// and enforces the bounds itself.
type SwapFill struct {
	AmountIn  *big.Int `json:"amountIn"`
	AmountOut *big.Int `json:"amountOut"`
}

// SwapAdapter executes a swap against an external venue.
type SwapAdapter interface {
	Swap(ctx context.Context, call SwapCall) (SwapFill, error)
}

// Ledger stands for the fungible-token implementations custody sits on.
type Ledger interface {
	Transfer(ctx context.Context, asset, from, to common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, asset, holder common.Address) (*big.Int, error)
}

// Journal is implemented by ledgers that can undo their own effects. The
// Treasury takes a snapshot before touching the ledger and closes it with
// RevertToSnapshot when the operation aborts or Commit when it settles.
type Journal interface {
	Snapshot() int
	RevertToSnapshot(id int)
	Commit(id int)
}
