package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"

	"fileshare/internal/api"
	"fileshare/internal/blobstore"
	"fileshare/internal/store"
	"fileshare/internal/validate"
)

type testEnv struct {
	srv   *Server
	svc   *FileService
	st    *store.Store
	blobs *blobstore.LocalCAS
}

func newTestEnv(t *testing.T, dataDir string, policy *validate.Policy) *testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(dataDir, "fileshare.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	blobs, err := blobstore.NewLocalCAS(filepath.Join(dataDir, "blobs"), blobstore.LocalCASOptions{})
	if err != nil {
		t.Fatalf("new local cas: %v", err)
	}

	svc := NewFileService(st, blobs, policy)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &testEnv{srv: New("127.0.0.1:0", svc, logger), svc: svc, st: st, blobs: blobs}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.srv.routes().ServeHTTP(w, req)
	return w
}

func multipartUpload(t *testing.T, field, name, contentType string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func (e *testEnv) upload(t *testing.T, name, contentType string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(multipartUpload(t, "file", name, contentType, content))
}

func (e *testEnv) info(t *testing.T) api.InfoResponse {
	t.Helper()
	w := e.do(httptest.NewRequest(http.MethodGet, "/api/v1/info", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("info: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var resp api.InfoResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	return resp
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, w.Body.String())
	}
	return resp
}

func jpegPayload(size int) []byte {
	b := bytes.Repeat([]byte{0x42}, size)
	b[0], b[1] = 0xFF, 0xD8
	b[size-2], b[size-1] = 0xFF, 0xD9
	return b
}

func pngPayload() []byte {
	return append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, bytes.Repeat([]byte{0x01}, 24)...)
}
