package api

import "net/http"

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"treasury": s.engine.Status().Treasury.Hex(),
		"balances": balancesJSON(s.engine.Balances()),
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	var body transferBody
	if !decodeBody(w, r, &body) {
		return
	}
	asset, err := parseAddress("asset", body.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.engine.Deposit(r.Context(), caller, asset, amount); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":   asset.Hex(),
		"balance": amountString(s.engine.Balance(asset)),
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	var body transferBody
	if !decodeBody(w, r, &body) {
		return
	}
	asset, err := parseAddress("asset", body.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recipient := caller
	if body.Recipient != "" {
		if recipient, err = parseAddress("recipient", body.Recipient); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := s.engine.Withdraw(r.Context(), caller, asset, recipient, amount); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":     asset.Hex(),
		"recipient": recipient.Hex(),
		"balance":   amountString(s.engine.Balance(asset)),
	})
}
