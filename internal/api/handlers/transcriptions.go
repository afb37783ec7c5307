package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nikhilbhutani/whisperapi/internal/auth"
	"github.com/nikhilbhutani/whisperapi/internal/models"
	"github.com/nikhilbhutani/whisperapi/internal/transcribe"
	"github.com/nikhilbhutani/whisperapi/internal/transcript"
)

// Form values up to this size stay in memory; larger uploads are spooled by net/http.
const multipartMemory = 8 << 20

// Transcriber is implemented by *transcribe.Service.
type Transcriber interface {
	ModelStatus
	Transcribe(ctx context.Context, up transcribe.Upload, opts transcribe.Options) (*transcribe.Outcome, error)
}

type TranscriptionHandler struct {
	svc       Transcriber
	maxUpload int64
}

func NewTranscriptionHandler(svc Transcriber, maxUpload int64) *TranscriptionHandler {
	return &TranscriptionHandler{svc: svc, maxUpload: maxUpload}
}

// Create handles POST /v1/audio/transcriptions.
func (h *TranscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.transcribe(w, r, "", models.SourceSync)
}

// SRT handles POST /v1/audio/transcriptions/srt. response_format is ignored.
func (h *TranscriptionHandler) SRT(w http.ResponseWriter, r *http.Request) {
	h.transcribe(w, r, transcript.FormatSRT, models.SourceSync)
}

func (h *TranscriptionHandler) transcribe(w http.ResponseWriter, r *http.Request, forced transcript.Format, source string) {
	if !h.svc.Ready() {
		writeError(w, http.StatusServiceUnavailable, transcribe.ErrModelUnavailable.Error())
		return
	}

	form, err := parseUpload(w, r, h.maxUpload)
	if err != nil {
		writeError(w, uploadErrorStatus(err), err.Error())
		return
	}
	defer form.Close()

	format := forced
	if format == "" {
		format, err = transcript.ParseFormat(r.FormValue("response_format"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	out, err := h.svc.Transcribe(r.Context(), form.upload(), form.options(r, source))
	if err != nil {
		writeError(w, transcribeErrorStatus(err), err.Error())
		return
	}

	body, contentType, err := transcript.Render(format, out.Result)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// Legacy handles POST /transcribe, which wraps the transcript in a JSON envelope.
// response_format is text (default) or srt.
func (h *TranscriptionHandler) Legacy(w http.ResponseWriter, r *http.Request) {
	if !h.svc.Ready() {
		writeError(w, http.StatusServiceUnavailable, transcribe.ErrModelUnavailable.Error())
		return
	}

	form, err := parseUpload(w, r, h.maxUpload)
	if err != nil {
		writeError(w, uploadErrorStatus(err), err.Error())
		return
	}
	defer form.Close()

	format := strings.ToLower(strings.TrimSpace(r.FormValue("response_format")))
	if format == "" {
		format = string(transcript.FormatText)
	}
	if format != string(transcript.FormatText) && format != string(transcript.FormatSRT) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("response_format must be text or srt, got %q", format))
		return
	}

	out, err := h.svc.Transcribe(r.Context(), form.upload(), form.options(r, models.SourceLegacy))
	if err != nil {
		writeError(w, transcribeErrorStatus(err), err.Error())
		return
	}

	var duration float64
	if n := len(out.Result.Segments); n > 0 {
		duration = out.Result.Segments[n-1].End
	}
	resp := map[string]any{
		"filename":         form.filename,
		"duration_seconds": math.Round(duration*100) / 100,
		"language":         out.Result.Language,
	}
	if format == string(transcript.FormatSRT) {
		resp["srt"] = transcript.SRT(out.Result.Segments)
	} else {
		resp["text"] = strings.TrimSpace(out.Result.Text)
	}
	writeJSON(w, http.StatusOK, resp)
}

type uploadForm struct {
	file        multipart.File
	filename    string
	language    string
	prompt      string
	temperature float32
	form        *multipart.Form
}

var errFileRequired = errors.New("file is required")

// parseUpload reads the multipart body and validates the fields shared by every upload endpoint.
func parseUpload(w http.ResponseWriter, r *http.Request, maxUpload int64) (*uploadForm, error) {
	if maxUpload > 0 {
		// room for the other form fields and multipart framing
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload+1<<20)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, transcribe.ErrTooLarge
		}
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}

	f := &uploadForm{
		form:     r.MultipartForm,
		language: strings.TrimSpace(r.FormValue("language")),
		prompt:   r.FormValue("prompt"),
	}

	if t := strings.TrimSpace(r.FormValue("temperature")); t != "" {
		v, err := strconv.ParseFloat(t, 32)
		if err != nil || v < 0 || v > 1 {
			f.Close()
			return nil, fmt.Errorf("temperature must be a number between 0 and 1, got %q", t)
		}
		f.temperature = float32(v)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		f.Close()
		return nil, errFileRequired
	}
	f.file, f.filename = file, header.Filename
	if maxUpload > 0 && header.Size > maxUpload {
		f.Close()
		return nil, transcribe.ErrTooLarge
	}
	return f, nil
}

func (f *uploadForm) upload() transcribe.Upload {
	return transcribe.Upload{Filename: f.filename, Data: f.file}
}

func (f *uploadForm) options(r *http.Request, source string) transcribe.Options {
	return transcribe.Options{
		Language:    f.language,
		Prompt:      f.prompt,
		Temperature: f.temperature,
		RequestID:   chimiddleware.GetReqID(r.Context()),
		Principal:   auth.PrincipalID(r.Context()),
		Source:      source,
	}
}

func (f *uploadForm) Close() {
	if f.file != nil {
		f.file.Close()
	}
	if f.form != nil {
		f.form.RemoveAll()
	}
}

func uploadErrorStatus(err error) int {
	if errors.Is(err, transcribe.ErrTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func transcribeErrorStatus(err error) int {
	switch {
	case errors.Is(err, transcribe.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, transcribe.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, transcribe.ErrEmptyUpload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
