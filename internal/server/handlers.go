package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"fileshare/internal/api"
)

const maxJSONBodyBytes = 1 << 20

// apiError carries the HTTP status and envelope codes for a failed operation.
type apiError struct {
	status  int
	code    string
	errCode int
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error { return e.err }

// statusError classifies err under status. An error that is already
// classified keeps its original status and codes.
func statusError(status, errCode int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	var existing apiError
	if errors.As(err, &existing) && existing.status != 0 {
		return existing
	}
	return apiError{status: status, code: statusClasses[status].code, errCode: errCode, err: err}
}

func badRequest(err error) error { return badRequestCode(err, ErrCodeInvalidArgument) }

func badRequestCode(err error, errCode int) error {
	return statusError(http.StatusBadRequest, errCode, err)
}

func notFound(err error) error {
	return statusError(http.StatusNotFound, ErrCodeFileNotFound, err)
}

func conflict(err error) error {
	return statusError(http.StatusConflict, ErrCodeNameConflict, err)
}

func payloadTooLarge(err error) error {
	return statusError(http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, err)
}

func unsupportedMediaType(err error) error {
	return statusError(http.StatusUnsupportedMediaType, ErrCodeUnsupportedMediaType, err)
}

func internalError(err error) error {
	return statusError(http.StatusInternalServerError, ErrCodeInternal, err)
}

func storeFailure(err error) error {
	return statusError(http.StatusInternalServerError, ErrCodeStoreFailure, err)
}

func blobFailure(err error) error {
	return statusError(http.StatusInternalServerError, ErrCodeBlobFailure, err)
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.status != 0 {
		return apiErr.status
	}
	return http.StatusInternalServerError
}

// envelopeCodes returns the string and numeric codes reported for err.
func envelopeCodes(status int, err error) (string, int) {
	class := statusClasses[status]
	var apiErr apiError
	if errors.As(err, &apiErr) {
		if apiErr.code != "" {
			class.code = apiErr.code
		}
		if apiErr.errCode > 0 {
			class.errCode = apiErr.errCode
		}
	}
	return class.code, class.errCode
}

func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	code, errCode := envelopeCodes(status, err)

	attrs := []any{"status", status, "code", code, "error_code", errCode, "error", err}
	if r != nil {
		attrs = append(attrs, "method", r.Method, "path", r.URL.Path)
		if id := requestIDFromContext(r.Context()); id != "" {
			attrs = append(attrs, "request_id", id)
		}
	}

	message := err.Error()
	if status >= http.StatusInternalServerError {
		// Storage details stay in the server log.
		s.log().Error("request failed", attrs...)
		message = "internal error"
	} else {
		s.log().Debug("request rejected", attrs...)
	}

	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code, ErrorCode: errCode})
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorReq(w, r, httpStatusFromError(err), err)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("encode response", "status", status, "error", err)
	}
}

// decodeOptionalJSONReq fills dst from a JSON body. An empty body leaves
// dst untouched. On failure it writes the 400 and returns false.
func (s *Server) decodeOptionalJSONReq(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	body := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	err := json.NewDecoder(body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		err = badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	case errors.Is(err, io.ErrUnexpectedEOF):
		err = badRequestCode(fmt.Errorf("invalid JSON payload"), ErrCodeInvalidJSON)
	default:
		err = badRequestCode(err, ErrCodeInvalidJSON)
	}
	s.writeErrorReq(w, r, http.StatusBadRequest, err)
	return false
}

func (s *Server) pathNameOrBadRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.PathValue("name")
	if strings.TrimSpace(name) == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("file name is required"), ErrCodeMissingRequired))
		return "", false
	}
	return name, true
}

func confirmed(r *http.Request) bool {
	return r.Header.Get("X-Confirm") == "true"
}
