package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/lqt0707/monitor/internal/config"
	"github.com/lqt0707/monitor/internal/model"
	"github.com/lqt0707/monitor/internal/pipeline"
	"github.com/lqt0707/monitor/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.DB, chan pipeline.ReportJob) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Put(context.Background(), &model.ProjectConfig{
		ProjectID: "p1", Name: "proj", APIKey: "key1",
	}); err != nil {
		t.Fatalf("seed project: %v", err)
	}

	reports := make(chan pipeline.ReportJob, 8)

	srv := New(Deps{
		Config: config.ServerConfig{
			ListenAddr:      ":0",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			ProjectCacheTTL: time.Minute,
			MaxBodyBytes:    1 << 20,
			AuthSecret:      "test-secret",
		},
		Projects:       db,
		SourceArchives: db,
		EnqueueReport: func(j pipeline.ReportJob) bool {
			select {
			case reports <- j:
				return true
			default:
				return false
			}
		},
	})
	return srv, db, reports
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleReport_RejectsMissingAPIKey(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body, _ := json.Marshal(model.ReportDTO{ProjectID: "p1", Type: model.ReportJSError, ErrorMessage: "boom"})
	req := httptest.NewRequest(http.MethodPost, "/api/monitor/report", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleReport_AcceptsValidReport(t *testing.T) {
	srv, _, reports := newTestServer(t)
	body, _ := json.Marshal(model.ReportDTO{ProjectID: "p1", Type: model.ReportJSError, ErrorMessage: "boom"})
	req := httptest.NewRequest(http.MethodPost, "/api/monitor/report", bytes.NewReader(body))
	req.Header.Set(apiKeyHeader, "key1")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	select {
	case job := <-reports:
		if job.ProjectID != "p1" {
			t.Fatalf("unexpected job: %+v", job)
		}
	default:
		t.Fatal("expected report job to be enqueued")
	}

	if tok := rec.Header().Get(cacheTokenHeader); tok == "" {
		t.Fatal("expected a cache token to be issued")
	}
}

func TestHandleReport_CacheTokenBypassesRepoLookup(t *testing.T) {
	srv, _, reports := newTestServer(t)

	body, _ := json.Marshal(model.ReportDTO{ProjectID: "p1", Type: model.ReportJSError, ErrorMessage: "boom"})
	req := httptest.NewRequest(http.MethodPost, "/api/monitor/report", bytes.NewReader(body))
	req.Header.Set(apiKeyHeader, "key1")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	token := rec.Header().Get(cacheTokenHeader)
	<-reports

	req2 := httptest.NewRequest(http.MethodPost, "/api/monitor/report", bytes.NewReader(body))
	req2.Header.Set(cacheTokenHeader, token)
	rec2 := httptest.NewRecorder()
	srv.router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusAccepted {
		t.Fatalf("expected 202 on cache-token replay, got %d", rec2.Code)
	}
}

func TestHandleReport_RejectsBadJSON(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/monitor/report", bytes.NewReader([]byte("{not json")))
	req.Header.Set(apiKeyHeader, "key1")
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
