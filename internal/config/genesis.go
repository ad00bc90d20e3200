package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kjannette/trahn-treasury/internal/params"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Genesis is the initial state the engine boots with. Assets are referenced
// elsewhere in the file by symbol or address.
type Genesis struct {
	Treasury        string                `yaml:"treasury"`
	Relay           string                `yaml:"relay"`
	GovernanceAsset string                `yaml:"governance_asset"`
	BurnSink        string                `yaml:"burn_sink"`
	Governance      []string              `yaml:"governance"`
	Traders         []string              `yaml:"traders"`
	Assets          []GenesisAsset        `yaml:"assets"`
	Pairs           []GenesisPair         `yaml:"pairs"`
	Params          params.RiskParameters `yaml:"params"`
	// Validators names the rules to install, in order. Empty installs all.
	Validators []string   `yaml:"validators"`
	Paper      PaperVenue `yaml:"paper"`
}

type GenesisAsset struct {
	Address     string `yaml:"address"`
	Symbol      string `yaml:"symbol"`
	Decimals    uint8  `yaml:"decimals"`
	CoinGeckoID string `yaml:"coingecko_id"`
}

type GenesisPair struct {
	In  string `yaml:"in"`
	Out string `yaml:"out"`
}

// PaperVenue seeds the in-memory venue.
type PaperVenue struct {
	Pool     string         `yaml:"pool"`
	FeeBps   uint32         `yaml:"fee_bps"`
	Rates    []PaperRate    `yaml:"rates"`
	Balances []PaperBalance `yaml:"balances"`
}

// PaperRate prices one whole In in whole Out. The inverse is implied.
type PaperRate struct {
	In   string `yaml:"in"`
	Out  string `yaml:"out"`
	Rate string `yaml:"rate"`
}

// PaperBalance is minted to the first governance address and deposited into
// the treasury at startup. Amount is in whole units.
type PaperBalance struct {
	Asset  string `yaml:"asset"`
	Amount string `yaml:"amount"`
}

// LoadGenesis reads a YAML genesis file from disk.
func LoadGenesis(path string) (*Genesis, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open genesis: %w", err)
	}
	defer file.Close()

	var g Genesis
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&g); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	return &g, nil
}

// Validate checks references and formats. paper additionally requires the
// venue section to be usable.
func (g *Genesis) Validate(paper bool) error {
	var errs []string
	bad := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	for _, f := range []struct{ name, v string }{{"treasury", g.Treasury}, {"relay", g.Relay}} {
		if !common.IsHexAddress(f.v) {
			bad("genesis %s %q is not an address", f.name, f.v)
		}
	}
	if g.BurnSink != "" && !common.IsHexAddress(g.BurnSink) {
		bad("genesis burn_sink %q is not an address", g.BurnSink)
	}
	if len(g.Governance) == 0 {
		bad("genesis needs at least one governance address")
	}
	for _, list := range [][]string{g.Governance, g.Traders} {
		for _, a := range list {
			if !common.IsHexAddress(a) {
				bad("genesis principal %q is not an address", a)
			}
		}
	}

	seen := map[string]bool{}
	for _, a := range g.Assets {
		if !common.IsHexAddress(a.Address) {
			bad("asset %s address %q is invalid", a.Symbol, a.Address)
		}
		if a.Symbol == "" {
			bad("asset %s has no symbol", a.Address)
		}
		if seen[strings.ToUpper(a.Symbol)] {
			bad("asset symbol %s is duplicated", a.Symbol)
		}
		seen[strings.ToUpper(a.Symbol)] = true
	}
	if _, err := g.Asset(g.GovernanceAsset); err != nil {
		bad("governance_asset: %v", err)
	}
	for _, p := range g.Pairs {
		if _, err := g.Asset(p.In); err != nil {
			bad("pair %s->%s: %v", p.In, p.Out, err)
		}
		if _, err := g.Asset(p.Out); err != nil {
			bad("pair %s->%s: %v", p.In, p.Out, err)
		}
	}
	if err := g.Params.Validate(); err != nil {
		bad("params: %v", err)
	}

	if paper {
		if !common.IsHexAddress(g.Paper.Pool) {
			bad("paper pool %q is not an address", g.Paper.Pool)
		}
		if g.Paper.FeeBps >= params.BpsDenominator {
			bad("paper fee_bps %d must be below %d", g.Paper.FeeBps, params.BpsDenominator)
		}
		for _, r := range g.Paper.Rates {
			if _, err := g.Asset(r.In); err != nil {
				bad("paper rate: %v", err)
			}
			if _, err := g.Asset(r.Out); err != nil {
				bad("paper rate: %v", err)
			}
			if d, err := decimal.NewFromString(r.Rate); err != nil || !d.IsPositive() {
				bad("paper rate %s->%s %q must be a positive decimal", r.In, r.Out, r.Rate)
			}
		}
		for _, b := range g.Paper.Balances {
			if _, err := g.Asset(b.Asset); err != nil {
				bad("paper balance: %v", err)
			}
			if d, err := decimal.NewFromString(b.Amount); err != nil || !d.IsPositive() {
				bad("paper balance %s %q must be a positive decimal", b.Asset, b.Amount)
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("genesis invalid:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Asset resolves a symbol (case-insensitive) or an address to a listed asset.
func (g *Genesis) Asset(ref string) (GenesisAsset, error) {
	for _, a := range g.Assets {
		if strings.EqualFold(a.Symbol, ref) {
			return a, nil
		}
	}
	if common.IsHexAddress(ref) {
		want := common.HexToAddress(ref)
		for _, a := range g.Assets {
			if common.HexToAddress(a.Address) == want {
				return a, nil
			}
		}
	}
	return GenesisAsset{}, fmt.Errorf("unknown asset %q", ref)
}

// AssetAddress is Asset followed by address parsing.
func (g *Genesis) AssetAddress(ref string) (common.Address, error) {
	a, err := g.Asset(ref)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(a.Address), nil
}

// Addresses parses a list of validated hex addresses.
func Addresses(list []string) []common.Address {
	out := make([]common.Address, len(list))
	for i, a := range list {
		out[i] = common.HexToAddress(a)
	}
	return out
}
