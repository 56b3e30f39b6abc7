package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth reports process and database health. The databases get a quick
// ping, not a full integrity check; that belongs to the maintenance job.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := "ok"
	macroErr := s.cfg.MacroDB.QuickCheck(ctx)
	cacheErr := s.cfg.CacheDB.QuickCheck(ctx)
	dbStatus := map[string]string{"macro": "ok", "cache": "ok"}
	if macroErr != nil {
		dbStatus["macro"] = macroErr.Error()
		status = "degraded"
	}
	if cacheErr != nil {
		dbStatus["cache"] = cacheErr.Error()
		status = "degraded"
	}

	cpuAvg := 0.0
	if pcts, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(pcts) > 0 {
		cpuAvg = pcts[0]
	}
	memUsed := 0.0
	if stat, err := mem.VirtualMemory(); err == nil {
		memUsed = stat.UsedPercent
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]interface{}{
		"status":        status,
		"uptimeSeconds": int(time.Since(s.startedAt).Seconds()),
		"databases":     dbStatus,
		"cpuPercent":    cpuAvg,
		"memoryPercent": memUsed,
	})
}

func (s *Server) handleListIndicators(w http.ResponseWriter, r *http.Request) {
	states, err := s.cfg.Series.ListIndicators()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list indicators")
		s.writeError(w, http.StatusInternalServerError, "failed to list indicators")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"indicators": states})
}

func (s *Server) handleIndicatorSeries(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	series, err := s.cfg.Series.GetSeries(key)
	if err != nil {
		s.log.Error().Err(err).Str("indicator", key).Msg("Failed to load series")
		s.writeError(w, http.StatusInternalServerError, "failed to load series")
		return
	}
	if series == nil {
		s.writeError(w, http.StatusNotFound, "indicator not found")
		return
	}
	s.writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleIndicatorLatest(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	series, err := s.cfg.Series.GetSeries(key)
	if err != nil {
		s.log.Error().Err(err).Str("indicator", key).Msg("Failed to load series")
		s.writeError(w, http.StatusInternalServerError, "failed to load series")
		return
	}
	if series == nil {
		s.writeError(w, http.StatusNotFound, "indicator not found")
		return
	}
	latest := s.cfg.Freshness.Latest(series)
	if latest == nil {
		s.writeError(w, http.StatusNotFound, "indicator has no usable observation")
		return
	}
	s.writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleListCorrelations(w http.ResponseWriter, r *http.Request) {
	cells, err := s.cfg.Correlations.List()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list correlations")
		s.writeError(w, http.StatusInternalServerError, "failed to list correlations")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"correlations": cells})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.cfg.Runs.ListRuns(20)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list runs")
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}
