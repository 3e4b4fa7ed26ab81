package server

import (
	"fmt"
	"net/http"

	"fileshare/internal/api"
)

func (s *Server) handleAdminGCBlobs(w http.ResponseWriter, r *http.Request) {
	req := api.BlobGCRequest{DryRun: true}
	if !s.decodeOptionalJSONReq(w, r, &req) {
		return
	}
	if req.BatchSize < 0 {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequest(fmt.Errorf("batch_size must be >= 0")))
		return
	}
	if !req.DryRun && !confirmed(r) {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("non-dry-run requires X-Confirm: true header"), ErrCodeMissingRequired))
		return
	}

	result, err := s.service.GCBlobs(r.Context(), req.BatchSize, !req.DryRun)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.BlobGCResponse{
		CandidateCount: result.CandidateCount,
		DeletedCount:   result.DeletedCount,
		FailedCount:    result.FailedCount,
		ReclaimedBytes: result.ReclaimedBytes,
		DryRun:         result.DryRun,
	})
}

func (s *Server) handleAdminMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.metrics().snapshot())
}
