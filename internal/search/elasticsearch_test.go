package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vallemarketing/valle360-teste-sub009/config"
)

func fakeElastic(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body []byte)) *ElasticClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		// the client checks the product on its first request
		if r.URL.Path == "/" {
			_, _ = w.Write([]byte(`{"version":{"number":"7.17.10","build_flavor":"default"},"tagline":"You Know, for Search"}`))
			return
		}
		handler(w, r, body)
	}))
	t.Cleanup(srv.Close)

	c, err := NewElasticClient(config.ElasticConfig{Enabled: true, URL: srv.URL, Prefix: "workflow", Index: "event-log"})
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func TestIndexEvent(t *testing.T) {
	var gotPath string
	var gotDoc EventDocument
	c := fakeElastic(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		gotPath = r.URL.Path
		_ = json.Unmarshal(body, &gotDoc)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	doc := EventDocument{ID: "e-1", EventType: "workflow_transition.rerouted", EntityType: "workflow_transition", EntityID: "t-1", CreatedAt: time.Now().UTC()}
	require.NoError(t, c.IndexEvent(context.Background(), doc))

	assert.Equal(t, "/workflow-event-log/_doc/e-1", gotPath)
	assert.Equal(t, "workflow_transition.rerouted", gotDoc.EventType)
}

func TestIndexEventError(t *testing.T) {
	c := fakeElastic(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
	})

	err := c.IndexEvent(context.Background(), EventDocument{ID: "e-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestSearchEvents(t *testing.T) {
	var gotQuery map[string]interface{}
	c := fakeElastic(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/_search"))
		_ = json.Unmarshal(body, &gotQuery)
		_, _ = w.Write([]byte(`{"hits":{"hits":[{"_source":{"id":"e-1","event_type":"contract.signed","entity_type":"contract","entity_id":"c-1"}}]}}`))
	})

	docs, err := c.SearchEvents(context.Background(), "contract", 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "contract.signed", docs[0].EventType)
	assert.Contains(t, gotQuery["query"], "multi_match")
}

func TestDisabledClient(t *testing.T) {
	c, err := NewElasticClient(config.ElasticConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, c)

	assert.NoError(t, c.IndexEvent(context.Background(), EventDocument{ID: "e"}))
	_, err = c.SearchEvents(context.Background(), "x", 1)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestBuildEventQueryMatchAll(t *testing.T) {
	q := BuildEventQuery("", 5)
	assert.Equal(t, 5, q["size"])
	assert.Contains(t, q["query"], "match_all")
}
