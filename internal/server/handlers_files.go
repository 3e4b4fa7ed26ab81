package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"fileshare/internal/api"
	"fileshare/internal/models"
	"fileshare/internal/store"
)

const uploadFieldName = "file"

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploadBodyLimit())
	if err := r.ParseMultipartForm(s.multipartMaxMemory); err != nil {
		err = classifyMultipartError(err)
		if httpStatusFromError(err) == http.StatusRequestEntityTooLarge {
			s.metrics().rejected(rejectTooLarge)
		}
		s.writeServiceError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadFieldName)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("multipart field %q is required", uploadFieldName), ErrCodeMissingRequired))
		return
	}
	defer file.Close()

	stored, err := s.service.Upload(r.Context(), UploadInput{
		Filename:          header.Filename,
		DeclaredMediaType: header.Header.Get("Content-Type"),
		Content:           file,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := fileResponse(stored)
	w.Header().Set("Location", resp.Location)
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name, ok := s.pathNameOrBadRequest(w, r)
	if !ok {
		return
	}

	content, err := s.service.Download(r.Context(), name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer content.Reader.Close()

	etag := ""
	if content.Digest != "" {
		etag = strconv.Quote(content.Digest)
		w.Header().Set("ETag", etag)
	}
	if !content.CreatedAt.IsZero() {
		w.Header().Set("Last-Modified", content.CreatedAt.UTC().Format(http.TimeFormat))
	}
	if etag != "" && r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", content.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(content.SizeBytes, 10))
	w.Header().Set("Content-Disposition", contentDisposition(content.OriginalName))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content.Reader); err != nil {
		s.log().Error("stream file", "public_name", name, "request_id", requestIDFromContext(r.Context()), "error", err)
	}
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFileFilter(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	files, err := s.service.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := make([]api.FileResponse, 0, len(files))
	for _, f := range files {
		resp = append(resp, fileResponse(f))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	name, ok := s.pathNameOrBadRequest(w, r)
	if !ok {
		return
	}

	file, err := s.service.Get(r.Context(), name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, fileResponse(file))
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	name, ok := s.pathNameOrBadRequest(w, r)
	if !ok {
		return
	}

	if err := s.service.Delete(r.Context(), name); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{PublicName: name, Deleted: true})
}

func (s *Server) handleClearFiles(w http.ResponseWriter, r *http.Request) {
	if !confirmed(r) {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("clearing all files requires X-Confirm: true header"), ErrCodeMissingRequired))
		return
	}

	if err := s.service.ClearAll(r.Context()); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ClearResponse{Cleared: true})
}

func parseFileFilter(r *http.Request) (store.FileFilter, error) {
	query := r.URL.Query()
	filter := store.FileFilter{
		ContentType: strings.TrimSpace(query.Get("content_type")),
		NamePrefix:  query.Get("prefix"),
	}

	var err error
	if filter.Limit, err = parseNonNegativeInt(query.Get("limit"), "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = parseNonNegativeInt(query.Get("offset"), "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseNonNegativeInt(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, badRequestCode(fmt.Errorf("%s must be a non-negative integer", field), ErrCodeInvalidQuery)
	}
	return value, nil
}

func fileResponse(file models.StoredFile) api.FileResponse {
	return api.FileResponse{StoredFile: file, Location: DownloadLocation(file.PublicName)}
}

func contentDisposition(name string) string {
	if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": name}); disposition != "" {
		return disposition
	}
	return "attachment"
}

func classifyMultipartError(err error) error {
	if err == nil {
		return nil
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) || strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		return payloadTooLarge(fmt.Errorf("request body too large"))
	}
	return badRequestCode(err, ErrCodeInvalidMultipart)
}
