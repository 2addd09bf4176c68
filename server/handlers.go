package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/siherrmann/ragbot"
	"github.com/siherrmann/ragbot/helper"
	"github.com/siherrmann/ragbot/model"
)

type chatRequest struct {
	Message string `json:"message"`
}

type websiteRequest struct {
	URL      string `json:"url"`
	MaxPages *int   `json:"max_pages"`
	MaxDepth *int   `json:"max_depth"`
}

type uploadResponse struct {
	Message string              `json:"message,omitempty"`
	Error   string              `json:"error,omitempty"`
	Files   []string            `json:"files,omitempty"`
	Failed  []model.FileFailure `json:"failed_files,omitempty"`
	Warning string              `json:"warning,omitempty"`
}

type websiteResponse struct {
	Message string `json:"message"`
	model.WebsiteResult
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	writeJSON(w, http.StatusOK, s.service.Chat(r.Context(), req.Message))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No files provided")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers, ok := r.MultipartForm.File["files"]
	if !ok {
		s.log.Warn("No files found in request")
		writeError(w, http.StatusBadRequest, "No files provided")
		return
	}

	uploads := []ragbot.Upload{}
	failed := []model.FileFailure{}
	for _, header := range headers {
		if header.Filename == "" {
			continue
		}
		name := secureFilename(header.Filename)
		if name == "" {
			failed = append(failed, model.FileFailure{Name: header.Filename, Reason: "invalid file name"})
			continue
		}
		file, err := header.Open()
		if err != nil {
			failed = append(failed, model.FileFailure{Name: name, Reason: err.Error()})
			continue
		}
		defer func(f multipart.File) { _ = f.Close() }(file)
		uploads = append(uploads, ragbot.Upload{Name: name, Reader: file})
	}
	if len(uploads) == 0 && len(failed) == 0 {
		writeError(w, http.StatusBadRequest, "No valid files provided")
		return
	}

	result := s.service.IngestUpload(r.Context(), uploads)
	failed = append(failed, result.Failed...)

	if len(result.Processed) == 0 {
		s.log.Error("All file uploads failed", slog.Int("files", len(failed)))
		writeJSON(w, http.StatusInternalServerError, uploadResponse{Error: "All file uploads failed", Failed: failed})
		return
	}

	response := uploadResponse{
		Message: fmt.Sprintf("Successfully processed %d documents", len(result.Processed)),
		Files:   make([]string, 0, len(result.Processed)),
	}
	for _, f := range result.Processed {
		response.Files = append(response.Files, f.Name)
	}
	if len(failed) > 0 {
		response.Failed = failed
		response.Warning = fmt.Sprintf("%d files could not be processed", len(failed))
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleProcessWebsite(w http.ResponseWriter, r *http.Request) {
	var req websiteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "URL is required")
		return
	}

	maxPages, maxDepth := 0, -1
	if req.MaxPages != nil {
		maxPages = *req.MaxPages
	}
	if req.MaxDepth != nil {
		maxDepth = *req.MaxDepth
	}

	result, err := s.service.IngestWebsite(r.Context(), req.URL, maxPages, maxDepth)
	if err != nil {
		if errors.Is(err, helper.ErrExtract) {
			s.log.Warn("No content extracted from website", slog.String("url", req.URL), slog.Any("error", err))
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "Could not extract content from the provided URL",
				"url":   req.URL,
			})
			return
		}
		s.log.Error("Error processing website", slog.String("url", req.URL), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error processing website: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, websiteResponse{
		Message:       "Successfully processed website content",
		WebsiteResult: result,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Status(r.Context()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "RAG Chatbot is operational",
	})
}

// secureFilename keeps the base name and replaces everything except ascii
// letters, digits, dots, dashes and underscores.
func secureFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
