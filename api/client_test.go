package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veildata/anonclient-go/engine"
)

func fastOptions() []engine.Option {
	cfg := engine.DefaultConfig()
	cfg.Timeout = 2 * time.Second
	cfg.RetryCount = 3
	cfg.BackoffCap = time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.PollInactivityTimeout = 100 * time.Millisecond
	return []engine.Option{engine.WithConfig(cfg)}
}

func newAPIServer(t *testing.T) (*httptest.Server, *http.ServeMux) {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, mux
}

func TestClient_Authenticate(t *testing.T) {
	server, mux := newAPIServer(t)
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "ana", r.PostForm.Get("username"))
		assert.Equal(t, "s3cret", r.PostForm.Get("password"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"acc-1","refresh_token":"ref-1","token_type":"bearer"}`))
	})
	mux.HandleFunc("GET /jobs/j1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer acc-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"j1","status":"success"}`))
	})

	c, err := New(server.URL, fastOptions()...)
	require.NoError(t, err)

	require.NoError(t, c.Authenticate(context.Background(), "ana", "s3cret"))
	assert.Equal(t, "acc-1", c.Engine.Tokens().Access)

	job, err := c.Jobs.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, JobSuccess, job.Status)
}

func TestClient_AutoRefresh(t *testing.T) {
	var jobHits atomic.Int32
	server, mux := newAPIServer(t)
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"acc-1","refresh_token":"ref-1"}`))
	})
	mux.HandleFunc("GET /refresh", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ref-1", r.URL.Query().Get("token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"acc-2","refresh_token":"ref-2"}`))
	})
	mux.HandleFunc("GET /jobs/j1", func(w http.ResponseWriter, r *http.Request) {
		if jobHits.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"credentials expired"}`))
			return
		}
		assert.Equal(t, "Bearer acc-2", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"j1","status":"success"}`))
	})

	c, err := New(server.URL, fastOptions()...)
	require.NoError(t, err)
	require.NoError(t, c.Authenticate(context.Background(), "ana", "s3cret"))

	job, err := c.Jobs.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, JobSuccess, job.Status)
	assert.Equal(t, int32(2), jobHits.Load())

	tokens := c.Engine.Tokens()
	assert.Equal(t, "acc-2", tokens.Access)
	assert.Equal(t, "ref-2", tokens.Refresh)
}

func TestJobsService_Create(t *testing.T) {
	var polls atomic.Int32
	server, mux := newAPIServer(t)
	mux.HandleFunc("POST /jobs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Location", "/jobs/j7")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /jobs/j7", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if polls.Add(1) < 3 {
			w.Write([]byte(`{"id":"j7","status":"pending"}`))
			return
		}
		w.Write([]byte(`{"id":"j7","status":"success","result":{"rows":12}}`))
	})

	c := newAuthedClient(t, server)

	job, err := c.Jobs.Create(context.Background(), JobCreateRequest{
		DatasetID: "d1",
		Kind:      "anonymize",
	})
	require.NoError(t, err)
	assert.Equal(t, "j7", job.ID)
	assert.Equal(t, JobSuccess, job.Status)
	assert.False(t, job.Status.InProgress())
	assert.Equal(t, int32(3), polls.Load())
}

func TestJobsService_List(t *testing.T) {
	server, mux := newAPIServer(t)
	mux.HandleFunc("GET /jobs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "anonymize", r.URL.Query().Get("kind"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jobs":[{"id":"j1","status":"success"},{"id":"j2","status":"failure"}]}`))
	})

	c := newAuthedClient(t, server)

	list, err := c.Jobs.List(context.Background(), "anonymize")
	require.NoError(t, err)
	require.Len(t, list.Jobs, 2)
	assert.Equal(t, JobFailure, list.Jobs[1].Status)
}

func TestDatasetsService_CreateFromCSV(t *testing.T) {
	server, mux := newAPIServer(t)
	mux.HandleFunc("POST /datasets", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		assert.Equal(t, "people.csv", header.Filename)
		assert.Equal(t, "text/csv", header.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"d1","name":"people.csv","nb_lines":2}`))
	})

	c := newAuthedClient(t, server)

	ds, err := c.Datasets.CreateFromCSV(context.Background(), "people.csv",
		strings.NewReader("name,age\nana,33\n"))
	require.NoError(t, err)
	assert.Equal(t, "d1", ds.ID)
	assert.Equal(t, 2, ds.NbLines)
}

func TestResultsService_Download(t *testing.T) {
	server, mux := newAPIServer(t)
	mux.HandleFunc("GET /access", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s3://bucket/file.csv", r.URL.Query().Get("url"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"url":"s3://bucket/file.csv","signature":"sig"}`))
	})
	mux.HandleFunc("POST /download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("name,age\nana,33\n"))
	})

	c := newAuthedClient(t, server)

	access, err := c.Results.GetPermission(context.Background(), "s3://bucket/file.csv")
	require.NoError(t, err)
	require.Equal(t, "sig", access.Signature)

	payload, err := c.Results.Download(context.Background(), *access)
	require.NoError(t, err)
	assert.Equal(t, "name,age\nana,33\n", payload)
}

func TestHealthService(t *testing.T) {
	server, mux := newAPIServer(t)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	c, err := New(server.URL, fastOptions()...)
	require.NoError(t, err)

	payload, err := c.Health.Check(context.Background())
	require.NoError(t, err)
	m, ok := payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", m["status"])
}

func newAuthedClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	c, err := New(server.URL, fastOptions()...)
	require.NoError(t, err)
	c.Engine.SetTokens(engine.AuthTokens{Access: "acc-1"})
	return c
}
