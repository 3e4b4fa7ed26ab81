package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and info.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/info", s.handleInfo)

	// Upload and download.
	mux.HandleFunc("POST /api/v1/upload", s.handleUpload)
	mux.HandleFunc("GET /api/v1/download/{name}", s.handleDownload)

	// File metadata.
	mux.HandleFunc("GET /api/v1/files", s.handleListFiles)
	mux.HandleFunc("DELETE /api/v1/files", s.handleClearFiles)
	mux.HandleFunc("GET /api/v1/files/{name}", s.handleGetFile)
	mux.HandleFunc("DELETE /api/v1/files/{name}", s.handleDeleteFile)

	// Admin.
	mux.HandleFunc("POST /api/v1/admin/gc", s.handleAdminGCBlobs)
	mux.HandleFunc("GET /api/v1/admin/metrics", s.handleAdminMetrics)

	return s.withRequestLogging(mux)
}
