package server

import (
	"net/http"
	"strconv"

	"fileshare/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	verbose, _ := strconv.ParseBool(r.URL.Query().Get("verbose"))
	if !verbose {
		stats, err := s.service.Stats(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.InfoResponse{TotalFiles: stats.TotalFiles, TotalBytes: stats.TotalBytes})
		return
	}

	info, err := s.service.Info(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.InfoDetailResponse{
		TotalFiles:        info.Store.TotalFiles,
		TotalBytes:        info.Store.TotalBytes,
		SchemaVersion:     info.Store.SchemaVersion,
		BlobCount:         info.Store.BlobCount,
		BlobBytes:         info.Store.BlobBytes,
		BlobBackend:       info.BlobBackend,
		MaxFileBytes:      info.MaxFileBytes,
		MaxStorageBytes:   info.MaxStorageBytes,
		AllowedMediaTypes: info.AllowedMediaTypes,
	})
}
