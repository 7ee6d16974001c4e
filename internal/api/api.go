// Package api exposes the dubbing pipeline over HTTP: job submission and
// lifecycle endpoints, artifact downloads, and the voice catalogue.
//
// Handlers decode requests explicitly, map errors through the apperrors
// kinds to status codes, and never leak internal error details to clients.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/feherm/szinkron/internal/apperrors"
	"github.com/feherm/szinkron/internal/health"
	"github.com/feherm/szinkron/internal/job"
	"github.com/feherm/szinkron/pkg/provider/tts"
)

// maxRequestBody bounds submission payloads.
const maxRequestBody = 1 << 20

// defaultPageSize is the job list page size when the client names none.
const defaultPageSize = 20

// Submitter accepts and cancels jobs. Satisfied by *job.Orchestrator.
type Submitter interface {
	Submit(ctx context.Context, req job.Request) (*job.Job, error)
	Cancel(id string) error
}

// VoiceCatalog exposes the configured synthesis backends. Satisfied by
// *tts.Registry.
type VoiceCatalog interface {
	ListVoices(ctx context.Context) ([]tts.VoiceProfile, error)
	Enumerate(ctx context.Context) []tts.ProviderStatus
}

// Server holds the HTTP handler dependencies.
type Server struct {
	submitter Submitter
	registry  *job.Registry
	voices    VoiceCatalog
	health    *health.Handler
	metrics   http.Handler
	dataDir   string
}

// New creates a Server over the given pipeline components. metrics is
// the Prometheus scrape handler; nil falls back to the default registry.
func New(submitter Submitter, registry *job.Registry, voices VoiceCatalog, h *health.Handler, metrics http.Handler, dataDir string) *Server {
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	return &Server{
		submitter: submitter,
		registry:  registry,
		voices:    voices,
		health:    h,
		metrics:   metrics,
		dataDir:   dataDir,
	}
}

// Router returns the route table. Observability middleware is applied by
// the caller so tests can exercise routes without a meter provider.
func (s *Server) Router() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/dub", s.handleSubmit)
	mux.HandleFunc("GET /v1/jobs", s.handleListJobs)
	mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("DELETE /v1/jobs/{id}", s.handleDeleteJob)
	mux.HandleFunc("POST /v1/jobs/{id}/cancel", s.handleCancelJob)
	mux.HandleFunc("GET /v1/jobs/{id}/download", s.handleDownload)
	mux.HandleFunc("GET /v1/transcripts", s.handleTranscripts)
	mux.HandleFunc("GET /v1/voices", s.handleVoices)
	mux.HandleFunc("GET /v1/providers", s.handleProviders)

	s.health.Register(mux)
	mux.Handle("GET /metrics", s.metrics)

	return mux
}

// DecodeRequest reads a JSON submission from r, rejecting unknown fields
// and oversized bodies.
func DecodeRequest(r io.Reader) (job.Request, error) {
	var req job.Request
	dec := json.NewDecoder(io.LimitReader(r, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return job.Request{}, apperrors.New(apperrors.KindBadRequest,
			"invalid request body: "+err.Error(), err)
	}
	return req, nil
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeRequest(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	j, err := s.submitter.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobJSON(j.Snapshot()))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageSize)
	offset := queryInt(r, "offset", 0)

	jobs, total := s.registry.List(limit, offset)
	items := make([]jobResponse, len(jobs))
	for i := range jobs {
		items[i] = jobJSON(jobs[i])
	}
	writeJSON(w, http.StatusOK, jobListResponse{
		Jobs:       items,
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	j, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobJSON(j.Snapshot()))
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.submitter.Cancel(id); err != nil {
		writeError(w, err)
		return
	}
	j, err := s.registry.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, jobJSON(j.Snapshot()))
}

// downloadFile maps the file_type query parameter to the job artifact.
func downloadFile(j job.Job, fileType string) (string, error) {
	switch fileType {
	case "transcript":
		if j.Transcript != nil {
			return j.Transcript.File, nil
		}
	case "translation":
		if j.Translation != nil {
			return j.Translation.File, nil
		}
	case "audio":
		if j.Synthesis != nil {
			return j.Synthesis.File, nil
		}
	case "subtitles":
		if j.Synthesis != nil {
			return j.Synthesis.Subtitles, nil
		}
	case "video":
		if j.Muxing != nil {
			return j.Muxing.File, nil
		}
	default:
		return "", apperrors.New(apperrors.KindBadRequest,
			fmt.Sprintf("unknown file_type %q; valid values: transcript, translation, audio, subtitles, video", fileType), nil)
	}
	return "", apperrors.NotFound(fmt.Errorf("job %s has no %s artifact", j.ID, fileType))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	j, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	fileType := r.URL.Query().Get("file_type")
	if fileType == "" {
		fileType = "transcript"
	}
	path, err := downloadFile(j.Snapshot(), fileType)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Disposition", "attachment")
	http.ServeFile(w, r, path)
}

func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	files, err := job.FinalizedTranscripts(s.dataDir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transcripts": files,
		"total_count": len(files),
	})
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.voices.ListVoices(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	if provider := r.URL.Query().Get("provider"); provider != "" {
		filtered := voices[:0]
		for _, v := range voices {
			if v.Provider == provider {
				filtered = append(filtered, v)
			}
		}
		voices = filtered
	}

	out := make([]voiceResponse, len(voices))
	for i, v := range voices {
		out[i] = voiceResponse{
			ID:       v.ID,
			Name:     v.Name,
			Provider: v.Provider,
			Language: v.Language,
			Metadata: v.Metadata,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"voices": out})
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	statuses := s.voices.Enumerate(r.Context())
	out := make([]providerResponse, len(statuses))
	for i, st := range statuses {
		out[i] = providerResponse{
			Name:             st.Name,
			CostPerKiloChars: st.CostPerKiloChars,
			Available:        st.Available,
			VoiceCount:       st.VoiceCount,
			LastError:        st.LastError,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

// queryInt parses an integer query parameter, falling back to def on
// absence or garbage.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: encoding response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	kind, _ := apperrors.KindOf(err)
	if status >= http.StatusInternalServerError {
		slog.Error("api: request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{
		Error: errorBody{
			Message: apperrors.PublicMessage(err),
			Kind:    string(kind),
		},
	})
}
