package api

import "fmt"

// APIError is the decoded error envelope of a failed request. Status is
// always set; Code and ErrorCode only when the server sent the envelope.
type APIError struct {
	Status    int
	Code      string
	ErrorCode int
	Message   string
}

// Sentinels for errors.Is. They match any APIError carrying the same code.
var (
	ErrNotFound             = &APIError{Code: "not_found"}
	ErrPayloadTooLarge      = &APIError{Code: "payload_too_large"}
	ErrUnsupportedMediaType = &APIError{Code: "unsupported_media_type"}
)

func (e *APIError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Code != "" && e.Message != "":
		return e.Code + ": " + e.Message
	case e.Message != "":
		return e.Message
	case e.Status > 0:
		return fmt.Sprintf("api error: %d", e.Status)
	default:
		return "api error"
	}
}

// Is matches sentinels by code.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && e != nil && t.Code != "" && t.Code == e.Code
}

