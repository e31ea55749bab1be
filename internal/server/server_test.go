package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/datastory/internal/ai"
	"github.com/KaramelBytes/datastory/internal/analysis"
	"github.com/KaramelBytes/datastory/internal/digest"
	"github.com/KaramelBytes/datastory/internal/narrative"
	"github.com/KaramelBytes/datastory/internal/pipeline"
	"github.com/KaramelBytes/datastory/internal/session"
	"github.com/KaramelBytes/datastory/internal/table"
)

const weather = "date,meantemp,humidity\n2013-01-01,10,80\n2013-02-01,12,78\n2014-01-01,11,70\n"

type runtimeFunc func(ai.GenerateRequest) (string, error)

func (f runtimeFunc) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	text, err := f(req)
	if err != nil {
		return nil, err
	}
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Content: text}}}}, nil
}

func newTestServer(t *testing.T, rt ai.Runtime) (*httptest.Server, *pipeline.Pipeline) {
	t.Helper()
	root := t.TempDir()
	sessions := session.NewStore(root, 0)
	digests := digest.NewFileStore(root)
	p := &pipeline.Pipeline{
		Engine:   analysis.NewEngine(analysis.DefaultOptions(), nil),
		Table:    table.DefaultOptions(),
		Digests:  digests,
		Sessions: sessions,
	}
	if rt != nil {
		p.Narrator = &narrative.Orchestrator{Runtime: rt, Digests: digests, Sessions: sessions}
	}
	ts := httptest.NewServer(New(p, nil).Handler())
	t.Cleanup(ts.Close)
	return ts, p
}

func upload(t *testing.T, url string, fields map[string]string, filename, content string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	resp, err := http.Post(url+"/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func errorKind(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body errorBody
	decodeBody(t, resp, &body)
	return body.Error.Kind
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUploadAndRead(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp := upload(t, ts.URL, map[string]string{"description": "weather", "session_id": "s1"}, "w.csv", weather)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var accepted map[string]string
	decodeBody(t, resp, &accepted)
	assert.Equal(t, "s1", accepted["session_id"])
	assert.Equal(t, "ready", accepted["status"])
	assert.NotEmpty(t, resp.Header.Get("Content-Type"))

	resp = get(t, ts.URL+"/sessions/s1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sess session.Session
	decodeBody(t, resp, &sess)
	assert.Equal(t, session.StatusReady, sess.Status)

	resp = get(t, ts.URL+"/sessions/s1/digest")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var d digest.Digest
	decodeBody(t, resp, &d)
	assert.Equal(t, []string{"meantemp", "humidity"}, d.Numeric())
	assert.Len(t, d.ByYear, 2)

	resp = get(t, ts.URL+"/sessions/s1/digest?format=markdown")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")

	resp = get(t, ts.URL+"/sessions/s1/qa")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var qaBody struct {
		Entries []struct{ Question, Answer string } `json:"entries"`
	}
	decodeBody(t, resp, &qaBody)
	require.NotEmpty(t, qaBody.Entries)
	assert.Equal(t, "What is the time period where the data was captured?", qaBody.Entries[0].Question)

	resp = get(t, ts.URL+"/sessions/s1/facts")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var facts struct{ Facts []string }
	decodeBody(t, resp, &facts)
	assert.Contains(t, facts.Facts[0], "date, meantemp, humidity")
}

func TestUploadValidation(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp := upload(t, ts.URL, map[string]string{}, "w.csv", weather)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, KindRequest, errorKind(t, resp))

	resp = upload(t, ts.URL, map[string]string{"description": "d"}, "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = upload(t, ts.URL, map[string]string{"description": "d"}, "notes.pdf", "x")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadWithoutDateFieldIsDigestError(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp := upload(t, ts.URL, map[string]string{"description": "d", "session_id": "s2"}, "w.csv", "when,v\n2013-01-01,1\n")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, KindDigest, errorKind(t, resp))

	resp = get(t, ts.URL+"/sessions/s2")
	var sess session.Session
	decodeBody(t, resp, &sess)
	assert.Equal(t, session.StatusFailed, sess.Status)
}

func TestFailedReuploadHidesPreviousDigest(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp := upload(t, ts.URL, map[string]string{"description": "d", "session_id": "s3"}, "w.csv", weather)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = upload(t, ts.URL, map[string]string{"description": "d", "session_id": "s3"}, "w.csv", "when,v\n2013-01-01,1\n")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	for _, path := range []string{"/digest", "/qa", "/facts"} {
		resp = get(t, ts.URL+"/sessions/s3"+path)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, KindNotFound, errorKind(t, resp), path)
	}
}

func TestExpiredSessionIsGone(t *testing.T) {
	ts, p := newTestServer(t, nil)
	resp := upload(t, ts.URL, map[string]string{"description": "d", "session_id": "old"}, "w.csv", weather)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	path := filepath.Join(p.Sessions.Dir("old"), "session.json")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var sess session.Session
	require.NoError(t, json.Unmarshal(b, &sess))
	sess.ExpiresAt = time.Now().Add(-time.Minute)
	b, err = json.Marshal(&sess)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))

	for _, route := range []string{"", "/digest", "/qa", "/facts"} {
		resp = get(t, ts.URL+"/sessions/old"+route)
		assert.Equal(t, http.StatusGone, resp.StatusCode, route)
		assert.Equal(t, KindExpired, errorKind(t, resp), route)
	}
}

func TestNotFound(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp := get(t, ts.URL+"/sessions/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, KindNotFound, errorKind(t, resp))
}

func TestGenerationEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	upload(t, ts.URL, map[string]string{"description": "d", "session_id": "s1"}, "w.csv", weather)
	resp := post(t, ts.URL+"/sessions/s1/ask", `{"question":"why?"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	ts, p := newTestServer(t, runtimeFunc(func(req ai.GenerateRequest) (string, error) {
		if strings.Contains(req.Messages[0].Content, "Question: fail") {
			return "", errors.New("model offline")
		}
		return "generated", nil
	}))
	upload(t, ts.URL, map[string]string{"description": "d", "session_id": "s1"}, "w.csv", weather)
	p.Wait()

	resp = post(t, ts.URL+"/sessions/s1/ask", `{"question":"why?"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var answer map[string]string
	decodeBody(t, resp, &answer)
	assert.Equal(t, "generated", answer["answer"])

	resp = post(t, ts.URL+"/sessions/s1/ask", `{"question":"fail"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, KindGeneration, errorKind(t, resp))

	resp = post(t, ts.URL+"/sessions/s1/ask", `{"nope":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, ts.URL+"/sessions/s1/story", ``)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var story map[string]string
	decodeBody(t, resp, &story)
	assert.Equal(t, "generated", story["story"])

	resp = post(t, ts.URL+"/sessions/s1/narrative", `{"emotion":"joy","intensity_level":0,"word_count":10,"purpose":"p"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = post(t, ts.URL+"/sessions/s1/narrative", `{"emotion":"joy","intensity_level":8,"word_count":10,"purpose":"p"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = post(t, ts.URL+"/sessions/s1/ask-rag", `{"question":"why?"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, "no embedder configured")
}

func TestClassify(t *testing.T) {
	status, kind := classify(&analysis.DigestError{Op: "load", Err: errors.New("x")})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, KindDigest, kind)
	status, _ = classify(&narrative.GenerationError{Step: "s", Err: errors.New("x")})
	assert.Equal(t, http.StatusBadGateway, status)
	status, _ = classify(session.ErrExpired)
	assert.Equal(t, http.StatusGone, status)
	status, _ = classify(errors.New("disk full"))
	assert.Equal(t, http.StatusInternalServerError, status)
}
