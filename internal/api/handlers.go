package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/UCKETX/mcsm-templates/internal/logging"
	"github.com/UCKETX/mcsm-templates/internal/record"
	"github.com/UCKETX/mcsm-templates/internal/store"
)

// Error codes carried in the error envelope.
const (
	codeNotFound         = "not_found"
	codeInvalidCoreType  = "invalid_core_type"
	codeBadRequest       = "bad_request"
	codeMethodNotAllowed = "method_not_allowed"
	codeInternal         = "internal"
)

// Response is the envelope of every API response.
type Response struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *APIError `json:"error,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type coresData struct {
	Cores []string `json:"cores"`
}

type versionsData struct {
	CoreType string   `json:"core_type"`
	Versions []string `json:"versions"`
}

type buildsData struct {
	CoreType  string   `json:"core_type"`
	MCVersion string   `json:"mc_version"`
	Builds    []string `json:"builds"`
}

type buildData struct {
	Build record.BuildRecord `json:"build"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Status: "ok"})
}

func (s *Server) handleListCores(w http.ResponseWriter, r *http.Request) {
	cores, err := s.reader.CoreTypes()
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok", Data: coresData{Cores: cores}})
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	coreType, ok := pathParam(w, r, "coreType")
	if !ok {
		return
	}

	versions, err := s.reader.ListVersions(r.Context(), coreType)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	if len(versions) == 0 {
		writeError(w, http.StatusNotFound, codeNotFound, "no versions for core "+coreType)
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok", Data: versionsData{CoreType: coreType, Versions: versions}})
}

func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	coreType, ok := pathParam(w, r, "coreType")
	if !ok {
		return
	}
	mcVersion, ok := pathParam(w, r, "mcVersion")
	if !ok {
		return
	}

	builds, err := s.reader.ListBuilds(r.Context(), coreType, mcVersion)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok", Data: buildsData{
		CoreType:  coreType,
		MCVersion: mcVersion,
		Builds:    builds,
	}})
}

func (s *Server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	coreType, ok := pathParam(w, r, "coreType")
	if !ok {
		return
	}
	mcVersion, ok := pathParam(w, r, "mcVersion")
	if !ok {
		return
	}
	coreVersion, ok := pathParam(w, r, "coreVersion")
	if !ok {
		return
	}

	build, err := s.reader.GetBuild(r.Context(), coreType, mcVersion, coreVersion)
	if err != nil {
		s.writeReadError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok", Data: buildData{Build: build}})
}

// pathParam returns the unescaped URL parameter key, writing a 400 when it
// cannot be decoded.
func pathParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	raw := chi.URLParam(r, key)
	v, err := url.PathUnescape(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "malformed path segment "+raw)
		return "", false
	}
	return v, true
}

// writeReadError maps catalog errors onto HTTP statuses.
func (s *Server) writeReadError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case store.IsNotFound(err):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidCoreType):
		writeError(w, http.StatusBadRequest, codeInvalidCoreType, err.Error())
	default:
		logging.WithRequestID(r.Context(), s.logger).Error("read failed",
			"path", r.URL.Path,
			"error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Response{
		Status: "error",
		Error:  &APIError{Code: code, Message: message},
	})
}

// requestLogger logs one line per request through the server's slog logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			logging.WithRequestID(r.Context(), s.logger).Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start))
		}()
		next.ServeHTTP(ww, r)
	})
}
