package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"

	planerrors "github.com/devrev/pairdb/placement/internal/errors"
	"github.com/devrev/pairdb/placement/internal/middleware"
)

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Status    string                 `json:"status"`
	ErrorCode string                 `json:"error_code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// ErrorWriter renders errors as JSON responses
type ErrorWriter struct {
	logger *zap.Logger
}

// NewErrorWriter creates a new error writer
func NewErrorWriter(logger *zap.Logger) *ErrorWriter {
	return &ErrorWriter{logger: logger}
}

// HandleError writes err with the HTTP status of its plan error code
func (e *ErrorWriter) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: planerrors.GetCode(err).String(),
		Message:   err.Error(),
		RequestID: middleware.RequestIDFrom(r.Context()),
	}
	statusCode := http.StatusInternalServerError
	var pe *planerrors.PlanError
	if errors.As(err, &pe) {
		statusCode = grpcToHTTPStatus(pe.ToGRPCStatus().Code())
		if len(pe.Details) > 0 {
			resp.Details = pe.Details
		}
	}
	e.write(w, statusCode, resp)
}

// WriteErrorResponse writes a formatted error response
func (e *ErrorWriter) WriteErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	e.write(w, statusCode, ErrorResponse{
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		RequestID: middleware.RequestIDFrom(r.Context()),
	})
}

// WriteValidationError writes a 400 response for a malformed request
func (e *ErrorWriter) WriteValidationError(w http.ResponseWriter, r *http.Request, message string) {
	e.WriteErrorResponse(w, r, http.StatusBadRequest, planerrors.ErrCodeInvalidArgument.String(), message)
}

func (e *ErrorWriter) write(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	e.logger.Warn("HTTP error response",
		zap.Int("status_code", statusCode),
		zap.String("error_code", resp.ErrorCode),
		zap.String("message", resp.Message),
		zap.String("request_id", resp.RequestID),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// grpcToHTTPStatus converts a gRPC code to an HTTP status code
func grpcToHTTPStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition:
		return http.StatusPreconditionFailed
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
