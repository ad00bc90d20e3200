package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Services  healthServices `json:"services"`
}

type healthServices struct {
	Database    string `json:"database"`
	Mode        string `json:"mode"`
	TradesToday *int   `json:"tradesToday,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disabled"
	if s.db != nil {
		dbStatus = "connected"
		if err := s.db.Ping(r.Context()); err != nil {
			dbStatus = "disconnected"
		}
	}
	mode := "live"
	if s.engine.Status().Paper {
		mode = "paper"
	}

	services := healthServices{Database: dbStatus, Mode: mode}
	if s.trades != nil && dbStatus == "connected" {
		if n, err := s.trades.CountToday(r.Context()); err == nil {
			services.TradesToday = &n
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	})
}
