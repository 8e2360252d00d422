package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/user/mediarefinery/internal/domain"
	"github.com/user/mediarefinery/internal/encoding"
	"github.com/user/mediarefinery/internal/inventory"
	"github.com/user/mediarefinery/internal/pipeline"
	"github.com/user/mediarefinery/internal/report"
	"github.com/user/mediarefinery/internal/repository"
	"go.uber.org/zap"
)

// SnapshotKeySettings is the snapshot slot holding operator-adjusted policy
// settings.
const SnapshotKeySettings = "settings:latest"

func (s *Server) handleEnqueueDiscover(w http.ResponseWriter, r *http.Request) {
	s.enqueue(w, r, domain.JobDiscover)
}

func (s *Server) handleEnqueueConvert(w http.ResponseWriter, r *http.Request) {
	s.enqueue(w, r, domain.JobConvert)
}

func (s *Server) handleEnqueueRollback(w http.ResponseWriter, r *http.Request) {
	s.enqueue(w, r, domain.JobRollback)
}

// enqueue accepts an optional JSON object as the job payload and submits the
// job for the runner to pick up.
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, jobType string) {
	payload := map[string]any{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	job := &domain.Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
	if err := s.queue.Push(r.Context(), job); err != nil {
		s.logger.Error("failed to enqueue job", zap.String("job_type", jobType), zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not enqueue job")
		return
	}

	s.respondWithJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"type":   jobType,
	})
}

func (s *Server) handleDryRunReport(w http.ResponseWriter, r *http.Request) {
	var summary domain.DryRunSummary
	err := s.pgStore.Snapshots().Get(r.Context(), inventory.SnapshotKeyDryRun, &summary)
	if errors.Is(err, repository.ErrNotFound) {
		s.respondWithError(w, http.StatusNotFound, "No discovery run recorded yet")
		return
	}
	if err != nil {
		s.logger.Error("failed to load dry-run snapshot", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not load report")
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="dryrun.csv"`)
		if err := report.WriteDryRunCSV(w, &summary); err != nil {
			s.logger.Error("failed to write csv report", zap.Error(err))
		}
		return
	}
	s.respondWithJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRunSummary(w http.ResponseWriter, r *http.Request) {
	var summary report.Summary
	err := s.pgStore.Snapshots().Get(r.Context(), pipeline.SnapshotKeyRunSummary, &summary)
	if errors.Is(err, repository.ErrNotFound) {
		s.respondWithError(w, http.StatusNotFound, "No conversion run recorded yet")
		return
	}
	if err != nil {
		s.logger.Error("failed to load run summary snapshot", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not load summary")
		return
	}
	s.respondWithJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListInventory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.InventoryFilter{
		Status: q.Get("status"),
		Search: q.Get("search"),
		Limit:  queryInt(q.Get("limit"), 50),
		Offset: queryInt(q.Get("offset"), 0),
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}

	items, err := s.pgStore.Inventory().List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list inventory", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not list inventory")
		return
	}
	if items == nil {
		items = []domain.InventoryItem{}
	}
	s.respondWithJSON(w, http.StatusOK, items)
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), 50)
	if limit > 500 {
		limit = 500
	}
	offset := queryInt(q.Get("offset"), 0)

	records, err := s.pgStore.Audit().List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("failed to list audit records", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Could not list audit records")
		return
	}
	if records == nil {
		records = []domain.RewriteAuditRecord{}
	}
	s.respondWithJSON(w, http.StatusOK, records)
}

// Settings is the operator-tunable slice of the encoding policy.
type Settings struct {
	MaxWidth       int    `json:"max_width"`
	QualityPhoto   int    `json:"quality_photo"`
	QualityGraphic int    `json:"quality_graphic"`
	PreserveICC    string `json:"preserve_icc"`
	WebPEnabled    bool   `json:"webp_enabled"`
}

func settingsFromPolicy(p encoding.Policy) Settings {
	return Settings{
		MaxWidth:       p.MaxWidth,
		QualityPhoto:   p.QualityPhoto,
		QualityGraphic: p.QualityGraphic,
		PreserveICC:    p.PreserveICC,
		WebPEnabled:    p.WebPEnabled,
	}
}

func (st Settings) toPolicy() encoding.Policy {
	return encoding.Policy{
		MaxWidth:       st.MaxWidth,
		QualityPhoto:   st.QualityPhoto,
		QualityGraphic: st.QualityGraphic,
		PreserveICC:    st.PreserveICC,
		WebPEnabled:    st.WebPEnabled,
	}
}

func (st Settings) validate() error {
	if st.MaxWidth <= 0 {
		return errors.New("max_width must be positive")
	}
	if st.QualityPhoto < 1 || st.QualityPhoto > 100 {
		return errors.New("quality_photo must be in 1..100")
	}
	if st.QualityGraphic < 1 || st.QualityGraphic > 100 {
		return errors.New("quality_graphic must be in 1..100")
	}
	switch st.PreserveICC {
	case encoding.ICCAuto, encoding.ICCAlways, encoding.ICCNever:
	default:
		return errors.New("preserve_icc must be one of auto, always, never")
	}
	return nil
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, settingsFromPolicy(s.engine.Policy()))
}

// handlePutSettings validates and applies new policy settings. They take
// effect for subsequent conversions and survive restarts via the snapshot.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var st Settings
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := st.validate(); err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.engine.SetPolicy(st.toPolicy())
	if err := s.pgStore.Snapshots().Put(r.Context(), SnapshotKeySettings, st); err != nil {
		s.logger.Error("failed to persist settings snapshot", zap.Error(err))
		s.respondWithError(w, http.StatusInternalServerError, "Settings applied but not persisted")
		return
	}
	s.respondWithJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	healthStatus := make(map[string]string)

	if err := s.pgStore.Ping(ctx); err != nil {
		healthStatus["postgres"] = "unhealthy"
		s.logger.Error("health check failed for postgres", zap.Error(err))
	} else {
		healthStatus["postgres"] = "healthy"
	}

	if err := s.queue.Ping(ctx); err != nil {
		healthStatus["redis"] = "unhealthy"
		s.logger.Error("health check failed for redis", zap.Error(err))
	} else {
		healthStatus["redis"] = "healthy"
	}

	isHealthy := healthStatus["postgres"] == "healthy" && healthStatus["redis"] == "healthy"
	if !isHealthy {
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

// --- Helper Functions ---

func queryInt(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
