package server

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"pdfpress/internal/batch"
	"pdfpress/internal/common"
	"pdfpress/internal/compression"
	"pdfpress/internal/pipeline"
	"pdfpress/internal/profile"
)

// maxUploadBytes bounds the multipart form kept in memory; larger parts
// spill to disk.
const maxUploadBytes = 32 << 20

type batchResponse struct {
	BatchID              string         `json:"batch_id"`
	Level                string         `json:"level"`
	Files                []fileResponse `json:"files"`
	TotalFiles           int            `json:"total_files"`
	Succeeded            int            `json:"succeeded"`
	NoImprovement        int            `json:"no_improvement"`
	Failed               int            `json:"failed"`
	TotalOriginalSize    int64          `json:"total_original_size"`
	TotalCompressedSize  int64          `json:"total_compressed_size"`
	SavedBytes           int64          `json:"saved_bytes"`
	SavingsPercent       float64        `json:"savings_percent"`
	DurationMilliseconds int64          `json:"duration_ms"`
}

type fileResponse struct {
	Index            int     `json:"index"`
	ID               string  `json:"id"`
	Filename         string  `json:"filename"`
	Status           string  `json:"status"`
	Reason           string  `json:"reason,omitempty"`
	Backend          string  `json:"backend,omitempty"`
	OriginalSize     int64   `json:"original_size"`
	CompressedSize   int64   `json:"compressed_size"`
	SavingsPercent   float64 `json:"savings_percent"`
	RecommendedLevel string  `json:"recommended_level,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateBatch accepts a multipart upload under the "files" field,
// runs the batch synchronously and returns the per-file outcomes.
func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	uploads := r.MultipartForm.File["files"]
	if len(uploads) == 0 {
		s.respondError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	level := profile.DefaultLevel
	if v := r.FormValue("quality"); v != "" {
		level = profile.Level(v)
	}
	if _, err := profile.Resolve(level); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown quality level %q", level))
		return
	}

	opts := compression.DefaultOptions()
	if v := r.FormValue("optimize_images"); v != "" {
		opts.OptimizeImages = v == "true" || v == "1"
	}
	if v := r.FormValue("strip_metadata"); v != "" {
		opts.StripMetadata = v == "true" || v == "1"
	}

	var docs []pipeline.SourceDocument
	for _, header := range uploads {
		f, err := header.Open()
		if err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("reading upload %q", header.Filename))
			return
		}
		// Buffer at most one byte past the per-document ceiling; the
		// pipeline rejects the document from its size alone, so the rest
		// of an oversized part is never read into memory.
		data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxDocumentBytes+1))
		f.Close()
		if err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("reading upload %q", header.Filename))
			return
		}
		docs = append(docs, pipeline.SourceDocument{
			ID:       common.GenerateUUID(),
			Filename: common.SanitizeFilename(header.Filename),
			Data:     data,
		})
	}

	destDir, err := s.newBatchDir()
	if err != nil {
		s.logger.Error("creating batch directory", "error", err)
		s.respondError(w, http.StatusInternalServerError, "storage error")
		return
	}

	report, err := s.orchestrator.ProcessBatch(r.Context(), docs, level, opts, destDir, nil)
	if err != nil {
		os.RemoveAll(destDir)
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.register(report, destDir)
	if s.store != nil {
		if err := s.store.RecordRun(report); err != nil {
			s.logger.Warn("recording batch stats", "error", err)
		}
	}

	s.respondJSON(w, http.StatusCreated, toBatchResponse(report))
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(chi.URLParam(r, "batchID"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "batch not found")
		return
	}
	s.respondJSON(w, http.StatusOK, toBatchResponse(rec.Report))
}

// handleGetFile streams one compressed artifact by its submission index.
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(chi.URLParam(r, "batchID"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "batch not found")
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 || index >= len(rec.Report.Results) {
		s.respondError(w, http.StatusBadRequest, "invalid file index")
		return
	}

	res := rec.Report.Results[index]
	if !res.Succeeded() || res.OutputPath == "" {
		s.respondError(w, http.StatusNotFound, "no artifact for this file")
		return
	}

	f, err := os.Open(res.OutputPath)
	if err != nil {
		s.logger.Error("opening artifact", "path", res.OutputPath, "error", err)
		s.respondError(w, http.StatusInternalServerError, "artifact unavailable")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", common.CompressedFilename(res.Filename)))
	io.Copy(w, f)
}

// handleGetArchive streams every successful artifact as a zip.
func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(chi.URLParam(r, "batchID"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "batch not found")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "compressed_"+rec.Report.BatchID+".zip"))

	zw := zip.NewWriter(w)
	defer zw.Close()

	for _, res := range rec.Report.Results {
		if !res.Succeeded() || res.OutputPath == "" {
			continue
		}
		f, err := os.Open(res.OutputPath)
		if err != nil {
			s.logger.Warn("skipping missing artifact", "path", res.OutputPath, "error", err)
			continue
		}
		entry, err := zw.Create(common.CompressedFilename(res.Filename))
		if err != nil {
			f.Close()
			return
		}
		io.Copy(entry, f)
		f.Close()
	}
}

func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.remove(chi.URLParam(r, "batchID"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err := os.RemoveAll(rec.DestDir); err != nil {
		s.logger.Warn("removing batch artifacts", "dir", rec.DestDir, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusNotFound, "stats not enabled")
		return
	}
	totals, err := s.store.Totals()
	if err != nil {
		s.logger.Error("loading stats", "error", err)
		s.respondError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	s.respondJSON(w, http.StatusOK, totals)
}

func toBatchResponse(report *batch.Report) batchResponse {
	resp := batchResponse{
		BatchID:              report.BatchID,
		Level:                string(report.Level),
		TotalFiles:           len(report.Results),
		Succeeded:            report.Succeeded,
		NoImprovement:        report.NoImprovement,
		Failed:               report.Failed,
		TotalOriginalSize:    report.TotalOriginalBytes,
		TotalCompressedSize:  report.TotalCompressedBytes,
		SavedBytes:           report.SavedBytes(),
		SavingsPercent:       report.SavingsPercent,
		DurationMilliseconds: report.Duration.Milliseconds(),
	}
	for i, res := range report.Results {
		resp.Files = append(resp.Files, fileResponse{
			Index:            i,
			ID:               res.ID,
			Filename:         res.Filename,
			Status:           string(res.Status),
			Reason:           res.Reason,
			Backend:          string(res.Backend),
			OriginalSize:     res.OriginalSize,
			CompressedSize:   res.CompressedSize,
			SavingsPercent:   res.SavingsPercent,
			RecommendedLevel: string(res.RecommendedLevel),
		})
	}
	return resp
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
