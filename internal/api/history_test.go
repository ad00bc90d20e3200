package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/kjannette/trahn-treasury/internal/models"
	"github.com/kjannette/trahn-treasury/internal/repository"
)

// fakeTrades records the filters it was queried with.
type fakeTrades struct {
	trades   []models.Trade
	counts   []models.RejectionCount
	today    int
	fail     bool
	lastDay    string
	lastTrader string
	lastMode   *bool
	lastN      int
}

func (f *fakeTrades) GetByDay(_ context.Context, day string, mode *bool) ([]models.Trade, error) {
	f.lastDay, f.lastMode = day, mode
	if f.fail {
		return nil, errors.New("connection reset")
	}
	return f.trades, nil
}

func (f *fakeTrades) GetAll(_ context.Context, limit int, mode *bool) ([]models.Trade, error) {
	f.lastN, f.lastMode = limit, mode
	return f.trades, nil
}

func (f *fakeTrades) GetByTrader(_ context.Context, trader string, limit int, mode *bool) ([]models.Trade, error) {
	f.lastTrader, f.lastN, f.lastMode = trader, limit, mode
	return f.trades[:1], nil
}

func (f *fakeTrades) GetStats(_ context.Context, mode *bool) (*models.TradeStats, error) {
	f.lastMode = mode
	return &models.TradeStats{TotalTrades: int64(len(f.trades)), ApprovedCount: 1, RejectedCount: 1}, nil
}

func (f *fakeTrades) RejectionCounts(_ context.Context, mode *bool) ([]models.RejectionCount, error) {
	f.lastMode = mode
	return f.counts, nil
}

func (f *fakeTrades) CountToday(context.Context) (int, error) { return f.today, nil }

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func withHistory(t *testing.T, store *fakeTrades, db Pinger) *Server {
	t.Helper()
	s, _ := newTestServer(t)
	s.trades = store
	s.db = db
	return s
}

func TestHistory_Routes(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	store := &fakeTrades{
		trades: []models.Trade{
			{ID: 1, Timestamp: now, TradingDay: "2026-03-02", Kind: "exact-in", Approved: true, Rejections: []string{}},
			{ID: 2, Timestamp: now, TradingDay: "2026-03-02", Kind: "buyback", Rejections: []string{"COOLDOWN_ACTIVE"}},
		},
		counts: []models.RejectionCount{{Code: "COOLDOWN_ACTIVE", Count: 4}, {Code: "PAIR_NOT_WHITELISTED", Count: 1}},
	}
	s := withHistory(t, store, fakePinger{})

	rr := do(t, s, http.MethodGet, "/v1/trades/day/2026-03-02?mode=paper", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("day: %d %s", rr.Code, rr.Body)
	}
	if got := decode[[]models.Trade](t, rr); len(got) != 2 || got[1].Rejections[0] != "COOLDOWN_ACTIVE" {
		t.Fatalf("day trades = %+v", got)
	}
	if store.lastDay != "2026-03-02" || store.lastMode == nil || !*store.lastMode {
		t.Fatalf("queried day=%q mode=%v", store.lastDay, store.lastMode)
	}

	do(t, s, http.MethodGet, "/v1/trades/today", nil, nil)
	if store.lastDay != repository.TradingDayNow() || store.lastMode != nil {
		t.Fatalf("today queried day=%q mode=%v", store.lastDay, store.lastMode)
	}

	do(t, s, http.MethodGet, "/v1/trades/all?limit=5000&mode=live", nil, nil)
	if store.lastN != maxQueryLimit || store.lastMode == nil || *store.lastMode {
		t.Fatalf("all queried limit=%d mode=%v", store.lastN, store.lastMode)
	}

	rr = do(t, s, http.MethodGet, "/v1/trades/trader/"+traderAddr.Hex()+"?limit=3", nil, nil)
	if got := decode[[]models.Trade](t, rr); len(got) != 1 {
		t.Fatalf("trader trades = %+v", got)
	}
	if store.lastTrader != traderAddr.Hex() || store.lastN != 3 {
		t.Fatalf("trader queried %q limit=%d", store.lastTrader, store.lastN)
	}

	stats := decode[models.TradeStats](t, do(t, s, http.MethodGet, "/v1/trades/stats", nil, nil))
	if stats.TotalTrades != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	counts := decode[[]models.RejectionCount](t, do(t, s, http.MethodGet, "/v1/trades/rejections", nil, nil))
	if len(counts) != 2 || counts[0].Code != "COOLDOWN_ACTIVE" || counts[0].Count != 4 {
		t.Fatalf("rejection counts = %+v", counts)
	}
}

func TestHistory_BadRequests(t *testing.T) {
	s := withHistory(t, &fakeTrades{}, fakePinger{})

	cases := []struct {
		path string
		want int
	}{
		{"/v1/trades/day/03-02-2026", http.StatusBadRequest},
		{"/v1/trades/day/2026-13-40", http.StatusBadRequest},
		{"/v1/trades/today?mode=sandbox", http.StatusBadRequest},
		{"/v1/trades/stats?mode=PAPER", http.StatusBadRequest},
		{"/v1/trades/trader/not-an-address", http.StatusBadRequest},
		{"/v1/trades/rejections?mode=all", http.StatusOK},
	}
	for _, tc := range cases {
		if rr := do(t, s, http.MethodGet, tc.path, nil, nil); rr.Code != tc.want {
			t.Errorf("%s: got %d, want %d", tc.path, rr.Code, tc.want)
		}
	}
}

func TestHistory_EmptyAndFailing(t *testing.T) {
	store := &fakeTrades{}
	s := withHistory(t, store, fakePinger{})

	rr := do(t, s, http.MethodGet, "/v1/trades/all", nil, nil)
	if body := rr.Body.String(); body != "[]\n" {
		t.Fatalf("empty history rendered as %q", body)
	}
	rr = do(t, s, http.MethodGet, "/v1/trades/rejections", nil, nil)
	if body := rr.Body.String(); body != "[]\n" {
		t.Fatalf("empty counts rendered as %q", body)
	}

	store.fail = true
	if rr := do(t, s, http.MethodGet, "/v1/trades/today", nil, nil); rr.Code != http.StatusInternalServerError {
		t.Fatalf("store failure: got %d", rr.Code)
	}
}

func TestHealth_Database(t *testing.T) {
	s := withHistory(t, &fakeTrades{today: 7}, fakePinger{})
	h := decode[healthResponse](t, do(t, s, http.MethodGet, "/health", nil, nil))
	if h.Services.Database != "connected" || h.Services.TradesToday == nil || *h.Services.TradesToday != 7 {
		t.Fatalf("health = %+v", h.Services)
	}
	if h.Services.Mode != "paper" {
		t.Errorf("mode = %q", h.Services.Mode)
	}

	s = withHistory(t, &fakeTrades{today: 7}, fakePinger{err: errors.New("refused")})
	h = decode[healthResponse](t, do(t, s, http.MethodGet, "/health", nil, nil))
	if h.Services.Database != "disconnected" || h.Services.TradesToday != nil {
		t.Fatalf("health with dead db = %+v", h.Services)
	}
}
