package api

import (
	"fmt"
	"net/http"

	"github.com/kjannette/trahn-treasury/internal/models"
	"github.com/kjannette/trahn-treasury/internal/repository"
)

// parseTradeMode extracts the ?mode= query parameter.
// Returns a *bool: nil = all, true = paper, false = live.
func parseTradeMode(r *http.Request) (*bool, error) {
	v := r.URL.Query().Get("mode")
	switch v {
	case "", "all":
		return nil, nil
	case "paper":
		b := true
		return &b, nil
	case "live":
		b := false
		return &b, nil
	default:
		return nil, fmt.Errorf("invalid mode %q, expected paper|live|all", v)
	}
}

// requireTrades writes 503 when history is not persisted.
func (s *Server) requireTrades(w http.ResponseWriter) bool {
	if s.trades == nil {
		writeError(w, http.StatusServiceUnavailable, "trade history requires the database")
		return false
	}
	return true
}

func (s *Server) handleTradesToday(w http.ResponseWriter, r *http.Request) {
	s.tradesForDay(w, r, repository.TradingDayNow())
}

func (s *Server) handleTradesByDay(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if !validateDate(date) {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return
	}
	s.tradesForDay(w, r, date)
}

func (s *Server) tradesForDay(w http.ResponseWriter, r *http.Request, day string) {
	if !s.requireTrades(w) {
		return
	}
	mode, err := parseTradeMode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trades, err := s.trades.GetByDay(r.Context(), day, mode)
	if err != nil {
		s.log.Error().Err(err).Str("day", day).Msg("fetch trades")
		writeError(w, http.StatusInternalServerError, "failed to fetch trades")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(trades))
}

func (s *Server) handleAllTrades(w http.ResponseWriter, r *http.Request) {
	if !s.requireTrades(w) {
		return
	}
	limit := parseLimit(r, 100)

	mode, err := parseTradeMode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trades, err := s.trades.GetAll(r.Context(), limit, mode)
	if err != nil {
		s.log.Error().Err(err).Msg("fetch all trades")
		writeError(w, http.StatusInternalServerError, "failed to fetch trades")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(trades))
}

func (s *Server) handleTraderTrades(w http.ResponseWriter, r *http.Request) {
	if !s.requireTrades(w) {
		return
	}
	trader, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := parseTradeMode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trades, err := s.trades.GetByTrader(r.Context(), trader.Hex(), parseLimit(r, 100), mode)
	if err != nil {
		s.log.Error().Err(err).Str("trader", trader.Hex()).Msg("fetch trader trades")
		writeError(w, http.StatusInternalServerError, "failed to fetch trades")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(trades))
}

func (s *Server) handleTradeStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireTrades(w) {
		return
	}
	mode, err := parseTradeMode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := s.trades.GetStats(r.Context(), mode)
	if err != nil {
		s.log.Error().Err(err).Msg("fetch trade stats")
		writeError(w, http.StatusInternalServerError, "failed to fetch trade stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRejectionCounts(w http.ResponseWriter, r *http.Request) {
	if !s.requireTrades(w) {
		return
	}
	mode, err := parseTradeMode(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	counts, err := s.trades.RejectionCounts(r.Context(), mode)
	if err != nil {
		s.log.Error().Err(err).Msg("fetch rejection counts")
		writeError(w, http.StatusInternalServerError, "failed to fetch rejection counts")
		return
	}
	if counts == nil {
		counts = []models.RejectionCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

func orEmpty(trades []models.Trade) []models.Trade {
	if trades == nil {
		return []models.Trade{}
	}
	return trades
}
