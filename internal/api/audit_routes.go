package api

import (
	"context"
	"net/http"

	"github.com/kjannette/trahn-treasury/internal/audit"
)

// RecorderReader serves audit queries from the in-memory ring when no
// database is configured.
func RecorderReader(rec *audit.Recorder) AuditReader {
	return recorderReader{rec}
}

type recorderReader struct{ rec *audit.Recorder }

func (r recorderReader) Recent(_ context.Context, limit int, kind audit.Kind) ([]audit.Record, error) {
	if kind == "" {
		return r.rec.Recent(limit), nil
	}
	matched := r.rec.OfKind(kind)
	out := make([]audit.Record, 0, min(limit, len(matched)))
	for i := len(matched) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, matched[i])
	}
	return out, nil
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not available")
		return
	}
	limit := parseLimit(r, 100)
	kind := audit.Kind(r.URL.Query().Get("kind"))

	records, err := s.audit.Recent(r.Context(), limit, kind)
	if err != nil {
		s.log.Error().Err(err).Msg("fetch audit records")
		writeError(w, http.StatusInternalServerError, "failed to fetch audit records")
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}
