package server

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/KaramelBytes/datastory/internal/digest"
	"github.com/KaramelBytes/datastory/internal/narrative"
	"github.com/KaramelBytes/datastory/internal/qa"
)

var allowedUploads = map[string]bool{".csv": true, ".tsv": true, ".xlsx": true}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, KindRequest, "invalid multipart form: "+err.Error())
		return
	}
	description := strings.TrimSpace(r.FormValue("description"))
	if description == "" {
		writeError(w, http.StatusBadRequest, KindRequest, "missing description")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, KindRequest, "missing file")
		return
	}
	defer file.Close()
	if !allowedUploads[strings.ToLower(filepath.Ext(header.Filename))] {
		writeError(w, http.StatusBadRequest, KindRequest, "accept only CSV, TSV or XLSX files")
		return
	}

	sess, _, err := s.pipe.Ingest(r.Context(), r.FormValue("session_id"), description, header.Filename, file)
	if err != nil {
		if sess == nil {
			writeError(w, http.StatusBadRequest, KindRequest, err.Error())
			return
		}
		s.fail(w, r, err)
		return
	}
	s.pipe.Background(r.Context(), sess.ID, s.NarrateTimeout)
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": sess.ID, "status": string(sess.Status)})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.pipe.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// loadDigest serves a digest only for a live session.
func (s *Server) loadDigest(w http.ResponseWriter, r *http.Request) (*digest.Digest, bool) {
	id := chi.URLParam(r, "id")
	if _, err := s.pipe.Sessions.Get(id); err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	d, err := s.pipe.Digests.Load(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return d, true
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	d, ok := s.loadDigest(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(d.Markdown()))
		return
	}
	b, err := d.Encode()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func (s *Server) handleQA(w http.ResponseWriter, r *http.Request) {
	d, ok := s.loadDigest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": qa.Generate(d)})
}

func (s *Server) handleFacts(w http.ResponseWriter, r *http.Request) {
	d, ok := s.loadDigest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"facts": qa.Facts(d)})
}

type question struct {
	Question string `json:"question"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, KindRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) narrator(w http.ResponseWriter) (*narrative.Orchestrator, bool) {
	if s.pipe.Narrator == nil {
		writeError(w, http.StatusServiceUnavailable, KindGeneration, "text generation is not configured")
		return nil, false
	}
	return s.pipe.Narrator, true
}

func (s *Server) readQuestion(w http.ResponseWriter, r *http.Request) (string, bool) {
	var q question
	if !decode(w, r, &q) {
		return "", false
	}
	if strings.TrimSpace(q.Question) == "" {
		writeError(w, http.StatusBadRequest, KindRequest, "missing question")
		return "", false
	}
	return q.Question, true
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	n, ok := s.narrator(w)
	if !ok {
		return
	}
	q, ok := s.readQuestion(w, r)
	if !ok {
		return
	}
	answer, err := n.AskFromStat(r.Context(), chi.URLParam(r, "id"), q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleAskRAG(w http.ResponseWriter, r *http.Request) {
	n, ok := s.narrator(w)
	if !ok {
		return
	}
	if s.pipe.Embedder == nil {
		writeError(w, http.StatusServiceUnavailable, KindGeneration, "embeddings are not configured")
		return
	}
	q, ok := s.readQuestion(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	idx, err := s.pipe.EnsureIndex(r.Context(), id, false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	answer, err := n.AskFromIndex(r.Context(), id, q, idx, s.pipe.Embedder)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleStory(w http.ResponseWriter, r *http.Request) {
	n, ok := s.narrator(w)
	if !ok {
		return
	}
	story, err := n.DataStory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"story": story})
}

func (s *Server) handleNarrative(w http.ResponseWriter, r *http.Request) {
	n, ok := s.narrator(w)
	if !ok {
		return
	}
	var a narrative.Agency
	if !decode(w, r, &a) {
		return
	}
	if err := a.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, KindRequest, err.Error())
		return
	}
	text, err := n.Affective(r.Context(), chi.URLParam(r, "id"), a)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"narrative": text})
}

func (s *Server) handleEmotions(w http.ResponseWriter, r *http.Request) {
	n, ok := s.narrator(w)
	if !ok {
		return
	}
	res, err := n.RecommendEmotion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDescription(w http.ResponseWriter, r *http.Request) {
	n, ok := s.narrator(w)
	if !ok {
		return
	}
	res, err := n.ExtractDescription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
