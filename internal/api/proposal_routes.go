package api

import (
	"net/http"
	"time"
)

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	var body swapBody
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.request(time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.engine.Preview(r.Context(), caller, req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toValidationJSON(res))
}

// handleProposeSwap answers 200 for both approved and rejected proposals; a
// rejection is an outcome, not a failure.
func (s *Server) handleProposeSwap(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	var body swapBody
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.request(time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.engine.ProposeSwap(r.Context(), caller, req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeJSON(out))
}

func (s *Server) handleProposeBuyback(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	var body buybackBody
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.request(time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.engine.ProposeBuyback(r.Context(), caller, req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeJSON(out))
}
