package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kjannette/trahn-treasury/internal/access"
	"github.com/kjannette/trahn-treasury/internal/audit"
	"github.com/kjannette/trahn-treasury/internal/config"
	"github.com/kjannette/trahn-treasury/internal/engine"
	"github.com/kjannette/trahn-treasury/internal/ethereum"
	"github.com/kjannette/trahn-treasury/internal/external"
	"github.com/kjannette/trahn-treasury/internal/logging"
	"github.com/kjannette/trahn-treasury/internal/params"
	"github.com/kjannette/trahn-treasury/internal/relay"
	"github.com/kjannette/trahn-treasury/internal/risk"
	"github.com/kjannette/trahn-treasury/internal/treasury"
	"github.com/kjannette/trahn-treasury/internal/units"
	"github.com/kjannette/trahn-treasury/internal/venue"
	"github.com/kjannette/trahn-treasury/internal/whitelist"
	"github.com/rs/zerolog"
)

// execution is the venue side of the engine: where swaps settle, where
// custody balances live and where the relay takes its quote from.
type execution struct {
	adapter treasury.SwapAdapter
	ledger  treasury.Ledger
	quoter  risk.Quoter
	self    common.Address
	// paper only
	paperLedger *venue.Ledger
	close       func()
}

func buildExecution(cfg *config.Config, log zerolog.Logger) (*execution, error) {
	g := cfg.Genesis
	if cfg.PaperTradingEnabled {
		return buildPaper(g, cfg.QuoteSource, log)
	}

	client, err := ethereum.NewClient(cfg.EthereumAPIEndpoint, cfg.PrivateKey, int64(cfg.ChainID), cfg.GasLimit, cfg.GasMultiplier)
	if err != nil {
		return nil, fmt.Errorf("ethereum client: %w", err)
	}
	if want := common.HexToAddress(g.Treasury); client.Wallet() != want {
		client.Close()
		return nil, fmt.Errorf("genesis treasury %s must be the signing wallet %s", want.Hex(), client.Wallet().Hex())
	}
	ethLog := logging.Component(log, "ethereum")
	router, err := ethereum.NewUniswapV2(client, common.HexToAddress(cfg.UniswapRouterAddress), common.HexToAddress(cfg.WETHAddress), ethLog)
	if err != nil {
		client.Close()
		return nil, err
	}
	ledger, err := ethereum.NewTokenLedger(client, ethLog)
	if err != nil {
		client.Close()
		return nil, err
	}

	ex := &execution{adapter: router, ledger: ledger, self: client.Wallet(), close: client.Close}
	switch cfg.QuoteSource {
	case config.QuoteRouter:
		ex.quoter = router
	case config.QuoteCoinGecko:
		ex.quoter = coinGeckoQuoter(g, log)
	}
	return ex, nil
}

func buildPaper(g *config.Genesis, source string, log zerolog.Logger) (*execution, error) {
	registry := venue.NewRegistry()
	for _, a := range g.Assets {
		registry.Register(venue.Asset{Address: common.HexToAddress(a.Address), Symbol: a.Symbol, Decimals: a.Decimals})
	}
	rates := venue.NewRateTable(registry)
	for _, r := range g.Paper.Rates {
		in, _ := g.AssetAddress(r.In)
		out, _ := g.AssetAddress(r.Out)
		rate, err := units.ParseRate(r.Rate)
		if err != nil {
			return nil, fmt.Errorf("paper rate %s->%s: %w", r.In, r.Out, err)
		}
		if err := rates.SetRate(in, out, rate); err != nil {
			return nil, fmt.Errorf("paper rate %s->%s: %w", r.In, r.Out, err)
		}
	}
	ledger := venue.NewLedger()
	ex, err := venue.NewExchange(ledger, rates, common.HexToAddress(g.Paper.Pool), g.Paper.FeeBps, logging.Component(log, "venue"))
	if err != nil {
		return nil, err
	}

	out := &execution{
		adapter:     ex,
		ledger:      ledger,
		quoter:      rates,
		self:        common.HexToAddress(g.Treasury),
		paperLedger: ledger,
		close:       func() {},
	}
	if source == config.QuoteCoinGecko {
		out.quoter = coinGeckoQuoter(g, log)
	}
	return out, nil
}

func coinGeckoQuoter(g *config.Genesis, log zerolog.Logger) risk.Quoter {
	priced := make(map[common.Address]external.PricedAsset)
	for _, a := range g.Assets {
		if a.CoinGeckoID != "" {
			priced[common.HexToAddress(a.Address)] = external.PricedAsset{ID: a.CoinGeckoID, Decimals: a.Decimals}
		}
	}
	return external.NewUSDQuoter(external.NewCoinGeckoClient(logging.Component(log, "coingecko")), priced)
}

// buildChain installs the named canonical rules in order; none named means
// all of them.
func buildChain(names []string) (*risk.Chain, error) {
	if len(names) == 0 {
		return risk.NewChain(risk.DefaultRules()...)
	}
	byName := make(map[string]risk.Rule)
	for _, r := range risk.DefaultRules() {
		byName[r.Name()] = r
	}
	rules := make([]risk.Rule, 0, len(names))
	for _, n := range names {
		r, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown validator %q", n)
		}
		rules = append(rules, r)
	}
	return risk.NewChain(rules...)
}

// buildEngine assembles params, whitelist, chain, treasury and relay from the
// genesis file, then applies the genesis traders, pairs and paper balances
// through the same governed operations the API uses.
func buildEngine(ctx context.Context, cfg *config.Config, ex *execution, sink audit.Sink, trades engine.TradeLog, log zerolog.Logger) (*engine.Service, error) {
	g := cfg.Genesis
	governance := config.Addresses(g.Governance)
	roles := access.NewRoles(governance...)
	gov := governance[0]

	store, err := params.NewStore(g.Params, roles, sink)
	if err != nil {
		return nil, err
	}
	pairs := whitelist.New(roles, sink)
	chain, err := buildChain(g.Validators)
	if err != nil {
		return nil, err
	}

	govAsset, _ := g.AssetAddress(g.GovernanceAsset)
	tcfg := treasury.Config{
		Address:         ex.self,
		GovernanceAsset: govAsset,
		Relay:           common.HexToAddress(g.Relay),
	}
	if g.BurnSink != "" {
		tcfg.BurnSink = common.HexToAddress(g.BurnSink)
	}
	vault, err := treasury.New(tcfg, roles, ex.adapter, ex.ledger, sink)
	if err != nil {
		return nil, err
	}
	r, err := relay.New(common.HexToAddress(g.Relay), roles, store, pairs, chain, ex.quoter, vault, sink)
	if err != nil {
		return nil, err
	}
	svc := engine.NewService(r, vault, pairs, trades, cfg.PaperTradingEnabled, logging.Component(log, "engine"))

	for _, t := range config.Addresses(g.Traders) {
		if err := svc.AuthorizeTrader(ctx, gov, t); err != nil {
			return nil, fmt.Errorf("genesis trader: %w", err)
		}
	}
	for _, p := range g.Pairs {
		in, _ := g.AssetAddress(p.In)
		out, _ := g.AssetAddress(p.Out)
		if err := svc.AddPair(ctx, gov, in, out); err != nil {
			return nil, fmt.Errorf("genesis pair %s->%s: %w", p.In, p.Out, err)
		}
	}

	if ex.paperLedger != nil {
		for _, b := range g.Paper.Balances {
			a, _ := g.Asset(b.Asset)
			amount, err := units.ParseAmount(b.Amount, a.Decimals)
			if err != nil {
				return nil, fmt.Errorf("paper balance %s: %w", b.Asset, err)
			}
			addr := common.HexToAddress(a.Address)
			if err := ex.paperLedger.Mint(addr, gov, amount); err != nil {
				return nil, fmt.Errorf("mint %s: %w", a.Symbol, err)
			}
			if err := svc.Deposit(ctx, gov, addr, amount); err != nil {
				return nil, fmt.Errorf("seed %s: %w", a.Symbol, err)
			}
			log.Info().Str("asset", a.Symbol).Str("amount", b.Amount).Msg("paper balance seeded")
		}
	}
	return svc, nil
}
