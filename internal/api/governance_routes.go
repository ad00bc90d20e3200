package api

import (
	"net/http"
	"time"

	"github.com/kjannette/trahn-treasury/internal/params"
)

type statusJSON struct {
	Relay                    string                `json:"relay"`
	ActiveRelay              string                `json:"activeRelay"`
	Treasury                 string                `json:"treasury"`
	GovernanceAsset          string                `json:"governanceAsset"`
	BurnSink                 string                `json:"burnSink"`
	Params                   params.RiskParameters `json:"params"`
	Validators               []string              `json:"validators"`
	LastTradeAt              *string               `json:"lastTradeAt,omitempty"`
	CooldownRemainingSeconds int64                 `json:"cooldownRemainingSeconds"`
	Paper                    bool                  `json:"paper"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	out := statusJSON{
		Relay:                    st.Relay.Hex(),
		ActiveRelay:              st.ActiveRelay.Hex(),
		Treasury:                 st.Treasury.Hex(),
		GovernanceAsset:          st.GovernanceAsset.Hex(),
		BurnSink:                 st.BurnSink.Hex(),
		Params:                   st.Params,
		Validators:               st.Validators,
		CooldownRemainingSeconds: int64(st.CooldownRemaining.Seconds()),
		Paper:                    st.Paper,
	}
	if st.LastTradeAt != nil {
		at := st.LastTradeAt.UTC().Format(time.RFC3339)
		out.LastTradeAt = &at
	}
	writeJSON(w, http.StatusOK, out)
}

// --- risk parameters ---

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Params())
}

func (s *Server) handleSetParams(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	var next params.RiskParameters
	if !decodeBody(w, r, &next) {
		return
	}
	prev, err := s.engine.SetParams(r.Context(), caller, next)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]params.RiskParameters{"previous": prev, "current": next})
}

// --- whitelist ---

func (s *Server) handleListPairs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Pairs())
}

func (s *Server) handleAddPair(w http.ResponseWriter, r *http.Request) {
	s.mutatePair(w, r, true)
}

func (s *Server) handleRemovePair(w http.ResponseWriter, r *http.Request) {
	s.mutatePair(w, r, false)
}

func (s *Server) mutatePair(w http.ResponseWriter, r *http.Request, add bool) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	var body pairBody
	if !decodeBody(w, r, &body) {
		return
	}
	in, err := parseAddress("assetIn", body.AssetIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := parseAddress("assetOut", body.AssetOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if add {
		err = s.engine.AddPair(r.Context(), caller, in, out)
	} else {
		err = s.engine.RemovePair(r.Context(), caller, in, out)
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Pairs())
}

// --- traders ---

func (s *Server) handleListTraders(w http.ResponseWriter, r *http.Request) {
	traders := s.engine.Traders()
	out := make([]string, len(traders))
	for i, t := range traders {
		out[i] = t.Hex()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAuthorizeTrader(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	var body addressBody
	if !decodeBody(w, r, &body) {
		return
	}
	trader, err := parseAddress("address", body.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.AuthorizeTrader(r.Context(), caller, trader); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"authorized": trader.Hex()})
}

func (s *Server) handleRevokeTrader(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	trader, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.RevokeTrader(r.Context(), caller, trader); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"revoked": trader.Hex()})
}

// --- validators ---

func (s *Server) handleListValidators(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status().Validators)
}

func (s *Server) handleEnableValidator(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	var body nameBody
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.engine.EnableValidator(r.Context(), caller, body.Name); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.engine.Status().Validators)
}

func (s *Server) handleDisableValidator(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	if err := s.engine.DisableValidator(r.Context(), caller, r.PathValue("name")); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Status().Validators)
}

// --- relay rotation ---

func (s *Server) handleUpdateRelay(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	var body relayBody
	if !decodeBody(w, r, &body) {
		return
	}
	old, err := parseAddress("old", body.Old)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	next, err := parseAddress("new", body.New)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.UpdateRelay(r.Context(), caller, old, next); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"relay": next.Hex()})
}
