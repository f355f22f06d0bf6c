package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Error codes carried in the response body. Each code is tied to one HTTP
// status so clients can branch on either.
const (
	codeInsufficientSpace = "insufficient_disk_space" // 507
	codeUnsupportedMedia  = "unsupported_media_type"  // 415
	codeConversionFailed  = "conversion_failed"       // 500
	codeMergeFailed       = "merge_failed"            // 500
	codeInvalidRequest    = "invalid_request"         // 400
)

type errorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Status: "error", Code: code, Message: message}); err != nil {
		log.Warn().Err(err).Str("code", code).Msg("error response write failed")
	}
}

// requestError pairs a failure with its taxonomy mapping so helpers deep in
// the upload path can decide the response without reaching for the writer.
type requestError struct {
	status  int
	code    string
	message string
}

func (e *requestError) Error() string { return e.message }

func badRequest(message string) *requestError {
	return &requestError{status: http.StatusBadRequest, code: codeInvalidRequest, message: message}
}
