package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/frankferrari/lanomat/internal/errors"
)

// Error codes for standardized API error responses
const (
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeRejected       = "REJECTED"
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"
)

// APIError represents an error with an HTTP status code and error code
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates a new API error with custom message and code
func NewAPIError(status int, code, message string) *APIError {
	return &APIError{Status: status, Code: code, Message: message}
}

// BadRequest creates a 400 error with custom message
func BadRequest(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: ErrCodeBadRequest, Message: message}
}

// NotFound creates a 404 error with custom message
func NotFound(message string) *APIError {
	return &APIError{Status: http.StatusNotFound, Code: ErrCodeNotFound, Message: message}
}

// Conflict creates a 409 error with custom message
func Conflict(message string) *APIError {
	return &APIError{Status: http.StatusConflict, Code: ErrCodeConflict, Message: message}
}

// InternalError creates a 500 error. The original error is never exposed.
func InternalError() *APIError {
	return &APIError{Status: http.StatusInternalServerError, Code: ErrCodeInternalServer, Message: "Internal server error"}
}

func codeOr(code, fallback string) string {
	if code != "" {
		return code
	}
	return fallback
}

// ToAPIError converts service errors to appropriate API errors
func ToAPIError(err error) *APIError {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}

	var appErr *errors.Error
	if !stderrors.As(err, &appErr) {
		return InternalError()
	}
	switch appErr.Kind {
	case errors.ErrNotFound:
		return &APIError{Status: http.StatusNotFound, Code: codeOr(appErr.Code, ErrCodeNotFound), Message: appErr.Message}
	case errors.ErrValidation:
		return &APIError{Status: http.StatusUnprocessableEntity, Code: codeOr(appErr.Code, ErrCodeValidation), Message: appErr.Message}
	case errors.ErrInvalidInput:
		return &APIError{Status: http.StatusBadRequest, Code: codeOr(appErr.Code, ErrCodeValidation), Message: appErr.Message}
	case errors.ErrConflict:
		return &APIError{Status: http.StatusConflict, Code: codeOr(appErr.Code, ErrCodeConflict), Message: appErr.Message}
	case errors.ErrRejected:
		// policy said no; the state is unchanged
		return &APIError{Status: http.StatusConflict, Code: codeOr(appErr.Code, ErrCodeRejected), Message: appErr.Message}
	default:
		return InternalError()
	}
}

// respondJSON writes a JSON response with the given status code
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondOK writes a 200 OK JSON response
func respondOK(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, data)
}

// respondCreated writes a 201 Created JSON response
func respondCreated(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusCreated, data)
}

// respondDeleted writes a 204 No Content response
func respondDeleted(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// respondError writes an error response, logging anything that ends up as a 500
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := ToAPIError(err)
	if apiErr.Status == http.StatusInternalServerError {
		h.Log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondJSON(w, apiErr.Status, apiErr)
}

// decodeJSON decodes JSON from request body into the target
func decodeJSON(r *http.Request, target interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		if err == io.EOF {
			return BadRequest("Request body is empty")
		}
		return BadRequest("Invalid JSON: " + err.Error())
	}
	return nil
}

// parseIDParam extracts and parses an integer URL parameter
func parseIDParam(r *http.Request, name string) (int64, error) {
	param := chi.URLParam(r, name)
	if param == "" {
		return 0, BadRequest("Missing " + name + " parameter")
	}
	id, err := strconv.ParseInt(param, 10, 64)
	if err != nil || id <= 0 {
		return 0, BadRequest("Invalid " + name + " parameter")
	}
	return id, nil
}
