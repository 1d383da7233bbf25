package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgallion1/pagechat/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	queryURLs, queryModel, queryTopK, queryRetrieveOnly = nil, "", 0, false
	processModel, processConcurrency = "", 0
	configPath, logLevel, logFormat, provider = "", "", "", ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

// fakeOllama embeds text mentioning gophers as [1,0] and anything else as [0,1].
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/embeddings":
			vec := []float64{0, 1}
			if strings.Contains(strings.ToLower(req.Prompt), "gopher") {
				vec = []float64{1, 0}
			}
			json.NewEncoder(w).Encode(map[string]any{"embedding": vec})
		case "/api/generate":
			assert.Contains(t, req.Prompt, "Gophers live in burrows.")
			json.NewEncoder(w).Encode(map[string]any{"response": "  In burrows.  ", "done": true})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func pageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Gophers</title></head><body><p>Gophers live in burrows.</p></body></html>`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pagechat version dev")
}

func TestQuery_EmptyIndex(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("OLLAMA_URL", "http://127.0.0.1:1")

	out, err := execute(t, "query", "anything?")
	require.NoError(t, err)
	assert.Equal(t, "No relevant information found.\n", out)
}

func TestQuery_EndToEnd(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("OLLAMA_URL", fakeOllama(t).URL)
	page := pageServer(t)

	out, err := execute(t, "query", "Where do gophers live?", "--urls", page.URL+"/gophers")
	require.NoError(t, err)
	assert.Contains(t, out, "Answer:")
	assert.Contains(t, out, "In burrows.")
	assert.Contains(t, out, "Sources:")
	assert.Contains(t, out, "- "+page.URL+"/gophers")
}

func TestQuery_RetrieveOnly(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("OLLAMA_URL", fakeOllama(t).URL)
	page := pageServer(t)

	out, err := execute(t, "query", "gophers?", "--urls", page.URL, "--retrieve-only")
	require.NoError(t, err)
	assert.Contains(t, out, "Retrieved chunks:")
	assert.Contains(t, out, "Gophers live in burrows.")
	assert.NotContains(t, out, "Answer:")
}

func TestProcessURLs_AllFail(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("OLLAMA_URL", "http://127.0.0.1:1")

	out, err := execute(t, "process-urls", "bad-url")
	require.Error(t, err)

	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.code)
	assert.ErrorIs(t, err, pipeline.ErrNoChunksIndexed)
	assert.ErrorIs(t, err, pipeline.ErrFetchFailed)
	assert.Contains(t, out, "bad-url")
	assert.Contains(t, out, "failed")
}

func TestProcessURLs_PartialBatch(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "ollama")
	t.Setenv("OLLAMA_URL", fakeOllama(t).URL)
	page := pageServer(t)

	out, err := execute(t, "process-urls", "bad-url", page.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "1 indexed, 0 partial, 1 failed")
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "100")
	t.Setenv("CHUNK_OVERLAP", "100")

	_, err := execute(t, "query", "q")
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "debug", "json")
	require.NoError(t, err)
	log.Debug("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	_, err = newLogger(&buf, "loud", "text")
	assert.Error(t, err)
	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}
