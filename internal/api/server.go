// Package api serves the engine over HTTP.
//
// Mutating routes act as the address in the X-Principal header. The header is
// asserted by the client and is not authenticated here: the API key only
// decides who may reach the service at all, so anyone holding the key can act
// as any principal. Binding callers to addresses (signed requests, mTLS or a
// gateway that sets the header) has to happen in front of this server.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kjannette/trahn-treasury/internal/audit"
	"github.com/kjannette/trahn-treasury/internal/engine"
	"github.com/kjannette/trahn-treasury/internal/errs"
	"github.com/kjannette/trahn-treasury/internal/models"
	"github.com/rs/zerolog"
)

const (
	maxQueryLimit = 1000
	maxBodyBytes  = 1 << 20

	// principalHeader names the address the request acts as. It is trusted
	// as given.
	principalHeader = "X-Principal"
)

var dateRegexp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// TradeStore reads persisted trade history.
type TradeStore interface {
	GetByDay(ctx context.Context, tradingDay string, paperMode *bool) ([]models.Trade, error)
	GetAll(ctx context.Context, limit int, paperMode *bool) ([]models.Trade, error)
	GetByTrader(ctx context.Context, trader string, limit int, paperMode *bool) ([]models.Trade, error)
	GetStats(ctx context.Context, paperMode *bool) (*models.TradeStats, error)
	RejectionCounts(ctx context.Context, paperMode *bool) ([]models.RejectionCount, error)
	CountToday(ctx context.Context) (int, error)
}

// AuditReader lists recent audit records, newest first. An empty kind
// matches all.
type AuditReader interface {
	Recent(ctx context.Context, limit int, kind audit.Kind) ([]audit.Record, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Port       int
	APIKey     string
	CORSOrigin string
	// Trades, Audit and DB are optional.
	Trades TradeStore
	Audit  AuditReader
	DB     Pinger
	Log    zerolog.Logger
}

type Server struct {
	engine     *engine.Service
	trades     TradeStore
	audit      AuditReader
	db         Pinger
	httpServer *http.Server
	apiKey     string
	log        zerolog.Logger
}

func NewServer(svc *engine.Service, opts Options) *Server {
	s := &Server{
		engine: svc,
		trades: opts.Trades,
		audit:  opts.Audit,
		db:     opts.DB,
		apiKey: opts.APIKey,
		log:    opts.Log,
	}

	handler := s.authMiddleware(corsMiddleware(s.routes(), opts.CORSOrigin))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Engine state
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/balances", s.handleBalances)

	// Governance
	mux.HandleFunc("GET /v1/params", s.handleGetParams)
	mux.HandleFunc("PUT /v1/params", s.handleSetParams)
	mux.HandleFunc("GET /v1/pairs", s.handleListPairs)
	mux.HandleFunc("POST /v1/pairs", s.handleAddPair)
	mux.HandleFunc("DELETE /v1/pairs", s.handleRemovePair)
	mux.HandleFunc("GET /v1/traders", s.handleListTraders)
	mux.HandleFunc("POST /v1/traders", s.handleAuthorizeTrader)
	mux.HandleFunc("DELETE /v1/traders/{address}", s.handleRevokeTrader)
	mux.HandleFunc("GET /v1/validators", s.handleListValidators)
	mux.HandleFunc("POST /v1/validators", s.handleEnableValidator)
	mux.HandleFunc("DELETE /v1/validators/{name}", s.handleDisableValidator)
	mux.HandleFunc("PUT /v1/relay", s.handleUpdateRelay)

	// Custody
	mux.HandleFunc("POST /v1/deposit", s.handleDeposit)
	mux.HandleFunc("POST /v1/withdraw", s.handleWithdraw)

	// Proposals
	mux.HandleFunc("POST /v1/proposals/preview", s.handlePreview)
	mux.HandleFunc("POST /v1/proposals/swap", s.handleProposeSwap)
	mux.HandleFunc("POST /v1/proposals/buyback", s.handleProposeBuyback)

	// History
	mux.HandleFunc("GET /v1/audit", s.handleAudit)
	mux.HandleFunc("GET /v1/trades/today", s.handleTradesToday)
	mux.HandleFunc("GET /v1/trades/day/{date}", s.handleTradesByDay)
	mux.HandleFunc("GET /v1/trades/all", s.handleAllTrades)
	mux.HandleFunc("GET /v1/trades/trader/{address}", s.handleTraderTrades)
	mux.HandleFunc("GET /v1/trades/stats", s.handleTradeStats)
	mux.HandleFunc("GET /v1/trades/rejections", s.handleRejectionCounts)

	// Health check (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

func (s *Server) Start() error {
	s.log.Info().
		Str("addr", s.httpServer.Addr).
		Bool("auth", s.apiKey != "").
		Msg("REST API server started")
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the full middleware stack.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// --- middleware ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+principalHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- request helpers ---

// principal reads the acting address. It writes the error response itself.
func principal(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	v := r.Header.Get(principalHeader)
	if !common.IsHexAddress(v) {
		writeError(w, http.StatusBadRequest, principalHeader+" header must be an address")
		return common.Address{}, false
	}
	return common.HexToAddress(v), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// --- validation helpers ---

func validateDate(date string) bool {
	if !dateRegexp.MatchString(date) {
		return false
	}
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

func parseLimit(r *http.Request, defaultLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps a hard failure to a status by its kind.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case errs.KindUnauthorized:
		status = http.StatusForbidden
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindDuplicate, errs.KindNoop, errs.KindReentrant:
		status = http.StatusConflict
	case errs.KindInvalidParameter, errs.KindZeroAddress, errs.KindZeroAmount, errs.KindSameAsset,
		errs.KindDeadlineExpired, errs.KindInvalidRoute, errs.KindOverflow:
		status = http.StatusBadRequest
	case errs.KindInsufficientBalance, errs.KindBoundViolation:
		status = http.StatusUnprocessableEntity
	case errs.KindAdapter, errs.KindTransfer, errs.KindQuote:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("unexpected engine error")
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": string(kind)})
}
