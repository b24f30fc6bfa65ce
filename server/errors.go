package server

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/viant/sqlite-minhash/proof"
	"github.com/viant/sqlite-minhash/service"
	"github.com/viant/sqlite-minhash/signature"
	"github.com/viant/sqlite-minhash/store"
)

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// badRequest marks request decoding failures.
type badRequest struct{ err error }

func (e *badRequest) Error() string { return e.err.Error() }
func (e *badRequest) Unwrap() error { return e.err }

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		formatErr   *signature.FormatError
		mismatchErr *signature.ConfigMismatchError
		ownerErr    *service.InvalidOwnerError
		locatorErr  *proof.InvalidLocatorError
		conflictErr *proof.ConflictError
		fetchErr    *proof.FetchError
		badReq      *badRequest
		validation  validator.ValidationErrors
		b64Err      base64.CorruptInputError
	)
	switch {
	case errors.As(err, &badReq),
		errors.As(err, &validation),
		errors.As(err, &b64Err),
		errors.As(err, &formatErr),
		errors.As(err, &mismatchErr),
		errors.As(err, &ownerErr),
		errors.As(err, &locatorErr):
		return http.StatusBadRequest
	case errors.As(err, &conflictErr):
		return http.StatusConflict
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.Is(err, proof.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotReady):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// abortWithError writes the mapped status and logs server-side failures.
func (s *Server) abortWithError(c *gin.Context, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable {
		s.logger.ErrorContext(c.Request.Context(), "request failed",
			"route", c.FullPath(), "request_id", requestID(c), "error", err)
		if code == http.StatusInternalServerError {
			msg = http.StatusText(code)
		}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, errorResponse{Error: msg, RequestID: requestID(c)})
}
