package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ashish-dwi99/FadeMem/internal/config"
	"github.com/Ashish-dwi99/FadeMem/internal/embedding"
	"github.com/Ashish-dwi99/FadeMem/internal/engine"
	"github.com/Ashish-dwi99/FadeMem/internal/index"
	"github.com/Ashish-dwi99/FadeMem/internal/judge"
	"github.com/Ashish-dwi99/FadeMem/internal/logger"
	"github.com/Ashish-dwi99/FadeMem/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Embed.Provider = "hash"
	cfg.Embed.Dimensions = 64

	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	eng := engine.New(cfg, db, index.NewChromem(),
		embedding.NewHashEmbedder(64), &judge.Fake{}, logger.Nop())
	t.Cleanup(eng.Stop)

	return New(db, eng, "test", logger.Nop())
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, true, resp["db"])
}

func TestAddAndSearch(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/memories", map[string]string{
		"owner_id": "alice",
		"content":  "owner collects rare vinyl records from berlin",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var added struct {
		Record struct {
			ID       string  `json:"id"`
			Strength float64 `json:"strength"`
		} `json:"record"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &added))
	require.NotEmpty(t, added.Record.ID)

	rec = doJSON(t, srv, http.MethodGet, "/api/search?owner_id=alice&q=vinyl+records+berlin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var search struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &search))
	assert.Equal(t, 1, search.Count)

	// Other owners never see it.
	rec = doJSON(t, srv, http.MethodGet, "/api/search?owner_id=bob&q=vinyl+records+berlin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &search))
	assert.Equal(t, 0, search.Count)
}

func TestAddValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/memories", map[string]string{
		"content": "no owner",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/memories", map[string]string{
		"owner_id": "alice",
		"content":  "   ",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/memories", map[string]string{
		"owner_id": "alice",
		"content":  "fine",
		"depth":    "bottomless",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMemoryAndHistory(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/memories", map[string]string{
		"owner_id": "alice",
		"content":  "owner speaks portuguese",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var added struct {
		Record struct {
			ID string `json:"id"`
		} `json:"record"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &added))

	rec = doJSON(t, srv, http.MethodGet, "/api/memories/"+added.Record.ID+"?owner_id=alice", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/memories/"+added.Record.ID+"?owner_id=bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/memories/"+added.Record.ID+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist struct {
		History []store.HistoryEntry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	assert.NotEmpty(t, hist.History)
}

func TestDecayEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/memories", map[string]string{
		"owner_id": "alice",
		"content":  "owner speaks portuguese",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/decay", map[string]string{"owner_id": "alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Records struct {
			Processed int `json:"processed"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Records.Processed)
}

func TestStatsAndCategories(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/memories", map[string]string{
		"owner_id": "alice",
		"content":  "owner speaks portuguese",
		"category": "languages",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/stats?owner_id=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats store.OwnerStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Active)

	rec = doJSON(t, srv, http.MethodGet, "/api/categories?owner_id=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cats struct {
		Categories []json.RawMessage `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cats))
	assert.Len(t, cats.Categories, 1)
}

func TestFusionEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/fusion", map[string]string{"owner_id": "alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/fusion", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCategorySummariesEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/memories", map[string]string{
		"owner_id": "alice",
		"content":  "owner speaks portuguese",
		"category": "languages",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/categories/summaries?owner_id=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Summaries []engine.CategorySummaryEntry `json:"summaries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Summaries, 1)
	assert.Equal(t, "languages", resp.Summaries[0].Name)
	assert.NotEmpty(t, resp.Summaries[0].Summary)

	rec = doJSON(t, srv, http.MethodGet, "/api/categories/summaries", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCategoryMemoriesEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/memories", map[string]string{
		"owner_id": "alice",
		"content":  "owner speaks portuguese",
		"category": "languages",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var added struct {
		Record struct {
			CategoryIDs []string `json:"category_ids"`
		} `json:"record"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &added))
	require.Len(t, added.Record.CategoryIDs, 1)

	rec = doJSON(t, srv, http.MethodGet,
		"/api/categories/"+added.Record.CategoryIDs[0]+"/memories", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count    int                  `json:"count"`
		Memories []store.MemoryRecord `json:"memories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "owner speaks portuguese", resp.Memories[0].Content)

	rec = doJSON(t, srv, http.MethodGet, "/api/categories/nope/memories", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
