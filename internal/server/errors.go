package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docintake/internal/model"
)

// apiError is the JSON error body. Kind is "security", "extraction" or
// "internal"; Reason carries the typed error's own kind when there is one.
type apiError struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// statusFor maps processing errors to HTTP statuses. Rejected archives are
// 422 and unreadable ones 400. Local I/O failures are 500.
func statusFor(err error) int {
	var extErr *model.ExtractionError
	switch {
	case errors.Is(err, model.ErrSecurity):
		return http.StatusUnprocessableEntity
	case errors.As(err, &extErr) && extErr.Kind == model.ExtractionIO:
		return http.StatusInternalServerError
	case errors.Is(err, model.ErrExtraction):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// handleError writes the JSON error body. A 500 never echoes the error text;
// the full error is attached to the context for the request log.
func handleError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusFor(err)
	body := apiError{Error: err.Error(), Kind: model.ErrorKind(err)}

	var secErr *model.SecurityError
	var extErr *model.ExtractionError
	switch {
	case errors.As(err, &secErr):
		body.Reason = secErr.Kind
	case errors.As(err, &extErr):
		body.Reason = extErr.Kind
	case status == http.StatusNotFound:
		body.Kind = ""
	}
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
	}
	c.AbortWithStatusJSON(status, body)
}

func abortWithMessage(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, apiError{Error: msg})
}
