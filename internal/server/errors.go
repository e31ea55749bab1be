package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/KaramelBytes/datastory/internal/analysis"
	"github.com/KaramelBytes/datastory/internal/digest"
	"github.com/KaramelBytes/datastory/internal/narrative"
	"github.com/KaramelBytes/datastory/internal/session"
)

// Error kinds reported to clients.
const (
	KindRequest    = "request"
	KindNotFound   = "not_found"
	KindExpired    = "expired"
	KindDigest     = "digest"
	KindGeneration = "generation"
	KindInternal   = "internal"
)

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	var body errorBody
	body.Error.Kind = kind
	body.Error.Message = msg
	writeJSON(w, status, body)
}

// classify maps an error to its HTTP status and kind. Digest failures are
// the client's data; generation failures are a downstream dependency.
func classify(err error) (int, string) {
	var de *analysis.DigestError
	var ge *narrative.GenerationError
	switch {
	case errors.As(err, &de):
		return http.StatusUnprocessableEntity, KindDigest
	case errors.As(err, &ge):
		return http.StatusBadGateway, KindGeneration
	case errors.Is(err, session.ErrExpired):
		return http.StatusGone, KindExpired
	case errors.Is(err, session.ErrNotFound), errors.Is(err, digest.ErrNotFound):
		return http.StatusNotFound, KindNotFound
	}
	return http.StatusInternalServerError, KindInternal
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	if status >= 500 {
		s.log.Error("request failed", "path", r.URL.Path, "kind", kind, "err", err)
	}
	writeError(w, status, kind, err.Error())
}
