// Package handler provides HTTP request handlers for the decomposition
// server.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ndemo/scalesep/internal/config"
	"github.com/ndemo/scalesep/internal/converter"
	"github.com/ndemo/scalesep/internal/costs"
	apierrors "github.com/ndemo/scalesep/internal/errors"
	"github.com/ndemo/scalesep/internal/release"
	"github.com/ndemo/scalesep/internal/service"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	svc      *service.Service
	tagger   *release.Tagger
	logger   *zap.Logger
	maxBytes int64
}

// NewHandlers creates a new Handlers instance. The tagger is optional; when
// nil the release endpoint reports the feature as disabled.
func NewHandlers(svc *service.Service, tagger *release.Tagger, logger *zap.Logger, cfg config.ServerConfig) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		svc:      svc,
		tagger:   tagger,
		logger:   logger,
		maxBytes: cfg.MaxRequestBytes,
	}
}

// submitRequest is the wire form of a decomposition submission.
type submitRequest struct {
	Data   [][]float64 `json:"data"`
	Time   []float64   `json:"time"`
	Levels []levelSpec `json:"levels"`
}

type levelSpec struct {
	WindowLength int     `json:"window_length"`
	StepSize     int     `json:"step_size"`
	NumBands     int     `json:"num_bands,omitempty"`
	Transform    string  `json:"transform,omitempty"`
	SVDRank      float64 `json:"svd_rank,omitempty"`
}

// jobResponse is the wire form of a job snapshot.
type jobResponse struct {
	JobID       string `json:"job_id"`
	State       string `json:"state"`
	SubmittedAt string `json:"submitted_at"`
	StartedAt   string `json:"started_at,omitempty"`
	FinishedAt  string `json:"finished_at,omitempty"`
	Error       string `json:"error,omitempty"`
	Levels      int    `json:"levels,omitempty"`
}

type listResponse struct {
	Jobs []jobResponse `json:"jobs"`
}

type resultResponse struct {
	JobID  string                    `json:"job_id"`
	Levels []*converter.LevelPayload `json:"levels"`
}

type releaseResponse struct {
	Tag     string `json:"tag"`
	Outcome string `json:"outcome"`
}

type errorResponse struct {
	Status    string `json:"status"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Submit handles POST /v1/decompositions requests.
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	var req submitRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, r, apierrors.InvalidArgument("decoding request body: "+err.Error(), nil))
		return
	}

	levels := make([]costs.LevelSpec, len(req.Levels))
	for i, l := range req.Levels {
		levels[i] = costs.LevelSpec{
			WindowLength: l.WindowLength,
			StepSize:     l.StepSize,
			NumBands:     l.NumBands,
			Transform:    l.Transform,
			SVDRank:      l.SVDRank,
		}
	}

	job, err := h.svc.Submit(r.Context(), &service.JobRequest{
		Data:   req.Data,
		Time:   req.Time,
		Levels: levels,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, jobFromService(job))
}

// GetJob handles GET /v1/decompositions/{job_id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["job_id"]

	job, err := h.svc.Get(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, jobFromService(job))
}

// GetResult handles GET /v1/decompositions/{job_id}/result requests.
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["job_id"]

	levels, err := h.svc.Result(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := resultResponse{JobID: id, Levels: make([]*converter.LevelPayload, len(levels))}
	for i, d := range levels {
		resp.Levels[i] = converter.FromLevel(d)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ListJobs handles GET /v1/decompositions requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.svc.List()
	resp := listResponse{Jobs: make([]jobResponse, len(jobs))}
	for i, job := range jobs {
		resp.Jobs[i] = jobFromService(job)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// TriggerRelease handles POST /v1/release requests. It runs the monthly
// tagger once, outside its schedule.
func (h *Handlers) TriggerRelease(w http.ResponseWriter, r *http.Request) {
	if h.tagger == nil {
		h.writeError(w, r, apierrors.Unavailable("release tagging is disabled", nil))
		return
	}

	res, err := h.tagger.Run(r.Context())
	if err != nil {
		h.writeError(w, r, apierrors.InternalError("release run failed", err))
		return
	}
	h.writeJSON(w, http.StatusOK, releaseResponse{Tag: res.Tag, Outcome: res.Outcome})
}

func jobFromService(job *service.Job) jobResponse {
	resp := jobResponse{
		JobID:       job.ID,
		State:       string(job.State),
		SubmittedAt: job.SubmittedAt.UTC().Format(time.RFC3339Nano),
		Error:       job.Error,
		Levels:      job.Levels,
	}
	if !job.StartedAt.IsZero() {
		resp.StartedAt = job.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if !job.FinishedAt.IsZero() {
		resp.FinishedAt = job.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	return resp
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encoding response failed", zap.Error(err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apierrors.HTTPStatusFor(err)
	resp := errorResponse{
		Status:    "error",
		Code:      int(apierrors.GetCode(err)),
		Message:   err.Error(),
		RequestID: r.Header.Get("X-Request-ID"),
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.Int("status", status),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
