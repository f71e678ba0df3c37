package server

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pdfpress/internal/batch"
	"pdfpress/internal/compression"
	"pdfpress/internal/config"
	"pdfpress/internal/pipeline"
	"pdfpress/internal/stats"
	"pdfpress/internal/testpdf"
)

func testServer(t *testing.T) *Server {
	return testServerWithConfig(t, nil)
}

func testServerWithConfig(t *testing.T, tweak func(*config.Config)) *Server {
	t.Helper()
	cfg := &config.Config{
		WorkingDir:       t.TempDir(),
		MemoryThreshold:  config.DefaultMemoryThreshold,
		MaxDocumentBytes: config.DefaultMaxDocumentBytes,
		MaxWorkers:       2,
		TimeoutBase:      30 * time.Second,
		TimeoutPerMB:     time.Second,
		TimeoutCeiling:   time.Minute,
		ProbeTimeout:     time.Second,
	}
	if tweak != nil {
		tweak(cfg)
	}
	probe := compression.NewProbe("", time.Second, nil)
	fallback := compression.NewFallback(nil)
	p := pipeline.New(cfg, probe, fallback, fallback, nil)
	orchestrator := batch.NewOrchestrator(cfg, p, nil)

	store, err := stats.Open(filepath.Join(cfg.WorkingDir, "stats.db"))
	if err != nil {
		t.Fatal(err)
	}
	return New(cfg, orchestrator, store, nil)
}

func multipartUpload(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	for key, value := range fields {
		mw.WriteField(key, value)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func createBatch(t *testing.T, handler http.Handler, fields map[string]string, files map[string][]byte) batchResponse {
	t.Helper()
	body, contentType := multipartUpload(t, fields, files)
	req := httptest.NewRequest(http.MethodPost, "/api/batches", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp batchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	handler := testServer(t).Router()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}

func TestCreateBatch(t *testing.T) {
	handler := testServer(t).Router()

	resp := createBatch(t, handler,
		map[string]string{"quality": "medium"},
		map[string][]byte{
			"a.pdf":      testpdf.TextPDF("first"),
			"broken.pdf": testpdf.Corrupt(),
		})

	if resp.BatchID == "" {
		t.Error("Expected a batch ID")
	}
	if resp.TotalFiles != 2 {
		t.Errorf("Expected 2 files, got %d", resp.TotalFiles)
	}
	if resp.Failed != 1 {
		t.Errorf("Expected one failed file, got %d", resp.Failed)
	}
	if len(resp.Files) != 2 {
		t.Fatalf("Expected 2 file entries, got %d", len(resp.Files))
	}
}

func TestCreateBatch_NoFiles(t *testing.T) {
	handler := testServer(t).Router()
	body, contentType := multipartUpload(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/batches", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestCreateBatch_UnknownQuality(t *testing.T) {
	handler := testServer(t).Router()
	body, contentType := multipartUpload(t,
		map[string]string{"quality": "turbo"},
		map[string][]byte{"a.pdf": testpdf.TextPDF("a")})
	req := httptest.NewRequest(http.MethodPost, "/api/batches", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestCreateBatch_OversizedUploadBounded(t *testing.T) {
	// An upload past the per-document ceiling is buffered only up to
	// ceiling+1 bytes and fails as a single document; siblings and the
	// batch itself go through.
	srv := testServerWithConfig(t, func(cfg *config.Config) {
		cfg.MaxDocumentBytes = 1024
	})
	handler := srv.Router()

	resp := createBatch(t, handler, nil, map[string][]byte{
		"small.pdf": testpdf.TextPDF("fits"),
		"huge.pdf":  bytes.Repeat([]byte("x"), 8*1024),
	})

	if resp.TotalFiles != 2 {
		t.Fatalf("Expected 2 files, got %d", resp.TotalFiles)
	}
	if resp.Failed != 1 {
		t.Errorf("Expected the oversized file to fail, got %d failures", resp.Failed)
	}
	for _, f := range resp.Files {
		switch f.Filename {
		case "huge.pdf":
			if f.Status != string(pipeline.StatusFailed) {
				t.Errorf("Expected huge.pdf failed, got %s", f.Status)
			}
			if !strings.Contains(f.Reason, "ceiling") {
				t.Errorf("Expected size ceiling reason, got %q", f.Reason)
			}
		case "small.pdf":
			if f.Status == string(pipeline.StatusFailed) {
				t.Errorf("Expected small.pdf to survive, got %s: %s", f.Status, f.Reason)
			}
		}
	}
}

func TestGetBatch(t *testing.T) {
	handler := testServer(t).Router()
	created := createBatch(t, handler, nil, map[string][]byte{"a.pdf": testpdf.TextPDF("a")})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches/"+created.BatchID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp batchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.BatchID != created.BatchID {
		t.Errorf("Expected batch %s, got %s", created.BatchID, resp.BatchID)
	}
}

func TestGetBatch_NotFound(t *testing.T) {
	handler := testServer(t).Router()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches/nonexistent", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestGetFile(t *testing.T) {
	handler := testServer(t).Router()
	created := createBatch(t, handler, nil, map[string][]byte{"doc.pdf": testpdf.TextPDF("payload")})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/batches/"+created.BatchID+"/files/0", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Expected application/pdf, got %s", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Error("Expected a PDF payload")
	}
}

func TestGetFile_BadIndex(t *testing.T) {
	handler := testServer(t).Router()
	created := createBatch(t, handler, nil, map[string][]byte{"doc.pdf": testpdf.TextPDF("payload")})

	for _, index := range []string{"5", "-1", "abc"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			"/api/batches/"+created.BatchID+"/files/"+index, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Index %s: expected 400, got %d", index, rec.Code)
		}
	}
}

func TestGetArchive(t *testing.T) {
	handler := testServer(t).Router()
	created := createBatch(t, handler, nil, map[string][]byte{
		"one.pdf": testpdf.TextPDF("one"),
		"two.pdf": testpdf.TextPDF("two"),
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/batches/"+created.BatchID+"/archive", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Errorf("Expected application/zip, got %s", ct)
	}

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("Expected 2 archive entries, got %d", len(zr.File))
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
		r, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, _ := io.ReadAll(r)
		r.Close()
		if !bytes.HasPrefix(data, []byte("%PDF-")) {
			t.Errorf("Entry %s is not a PDF", f.Name)
		}
	}
	if !names["one_compressed.pdf"] || !names["two_compressed.pdf"] {
		t.Errorf("Unexpected archive entry names: %v", names)
	}
}

func TestDeleteBatch(t *testing.T) {
	handler := testServer(t).Router()
	created := createBatch(t, handler, nil, map[string][]byte{"doc.pdf": testpdf.TextPDF("payload")})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/batches/"+created.BatchID, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches/"+created.BatchID, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	handler := testServer(t).Router()
	createBatch(t, handler, nil, map[string][]byte{"doc.pdf": testpdf.TextPDF("payload")})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var totals stats.Totals
	if err := json.Unmarshal(rec.Body.Bytes(), &totals); err != nil {
		t.Fatal(err)
	}
	if totals.Runs != 1 {
		t.Errorf("Expected 1 recorded run, got %d", totals.Runs)
	}
	if totals.Files != 1 {
		t.Errorf("Expected 1 file, got %d", totals.Files)
	}
}
