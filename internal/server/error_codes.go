package server

import "net/http"

// Numeric error codes sent as "error_code". The thousands digit is the family.
const (
	// Request validation (1xxx)
	ErrCodeInvalidArgument      = 1000
	ErrCodeInvalidJSON          = 1001
	ErrCodeRequestTooLarge      = 1002
	ErrCodeInvalidQuery         = 1003
	ErrCodeInvalidFilename      = 1004
	ErrCodeMissingRequired      = 1009
	ErrCodeInvalidMultipart     = 1010
	ErrCodePayloadTooLarge      = 1100
	ErrCodeUnsupportedMediaType = 1101

	// Stored files (2xxx)
	ErrCodeFileNotFound = 2001
	ErrCodeNameConflict = 2101

	// Storage and internal (4xxx)
	ErrCodeInternal     = 4001
	ErrCodeStoreFailure = 4002
	ErrCodeBlobFailure  = 4003
)

type statusClass struct {
	code    string
	errCode int
}

// statusClasses gives the envelope code and fallback numeric code per status.
var statusClasses = map[int]statusClass{
	http.StatusBadRequest:            {code: "invalid_argument", errCode: ErrCodeInvalidArgument},
	http.StatusNotFound:              {code: "not_found", errCode: ErrCodeFileNotFound},
	http.StatusConflict:              {code: "conflict", errCode: ErrCodeNameConflict},
	http.StatusRequestEntityTooLarge: {code: "payload_too_large", errCode: ErrCodePayloadTooLarge},
	http.StatusUnsupportedMediaType:  {code: "unsupported_media_type", errCode: ErrCodeUnsupportedMediaType},
	http.StatusInternalServerError:   {code: "internal", errCode: ErrCodeInternal},
}
