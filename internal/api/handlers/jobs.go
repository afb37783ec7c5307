package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/whisperapi/internal/auth"
	"github.com/nikhilbhutani/whisperapi/internal/jobs"
	"github.com/nikhilbhutani/whisperapi/internal/models"
	"github.com/nikhilbhutani/whisperapi/internal/stt"
	"github.com/nikhilbhutani/whisperapi/internal/transcript"
)

// JobService is implemented by *jobs.Service.
type JobService interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (*models.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	Result(ctx context.Context, id uuid.UUID) (*models.Job, *stt.Result, error)
}

var errJobsUnavailable = errors.New("async jobs are unavailable: redis is not configured")

type JobsHandler struct {
	jobs      JobService
	maxUpload int64
}

// NewJobsHandler accepts a nil service; every route then answers 503.
func NewJobsHandler(js JobService, maxUpload int64) *JobsHandler {
	return &JobsHandler{jobs: js, maxUpload: maxUpload}
}

func (h *JobsHandler) available(w http.ResponseWriter) bool {
	if h.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, errJobsUnavailable.Error())
		return false
	}
	return true
}

// Create handles POST /v1/audio/transcriptions/jobs.
func (h *JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	form, err := parseUpload(w, r, h.maxUpload)
	if err != nil {
		writeError(w, uploadErrorStatus(err), err.Error())
		return
	}
	defer form.Close()

	callback := strings.TrimSpace(r.FormValue("callback_url"))
	if err := validateCallbackURL(callback); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobs.Submit(r.Context(), jobs.SubmitRequest{
		Filename:    form.filename,
		Data:        form.file,
		Language:    form.language,
		Prompt:      form.prompt,
		Temperature: form.temperature,
		CallbackURL: callback,
		Principal:   auth.PrincipalID(r.Context()),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Location", "/v1/audio/transcriptions/jobs/"+job.ID.String())
	writeJSON(w, http.StatusAccepted, jobs.NewView(job))
}

// Get handles GET /v1/audio/transcriptions/jobs/{id}.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		writeError(w, jobErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jobs.NewView(job))
}

// Result handles GET /v1/audio/transcriptions/jobs/{id}/result?response_format=.
func (h *JobsHandler) Result(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	format, err := transcript.ParseFormat(r.URL.Query().Get("response_format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, res, err := h.jobs.Result(r.Context(), id)
	if errors.Is(err, jobs.ErrNotCompleted) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  err.Error(),
			"status": string(job.Status),
		})
		return
	}
	if err != nil {
		writeError(w, jobErrorStatus(err), err.Error())
		return
	}

	body, contentType, err := transcript.Render(format, res)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}

func jobErrorStatus(err error) int {
	if errors.Is(err, jobs.ErrNotFound) {
		return http.StatusNotFound
	}
	return transcribeErrorStatus(err)
}

func validateCallbackURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("callback_url must be an absolute http(s) URL")
	}
	return nil
}
