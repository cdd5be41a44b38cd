package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/database/members"
	"github.com/mrlokans/librarian/internal/lending"
	"github.com/mrlokans/librarian/internal/policy"
)

// Machine-readable error codes carried in ErrorResponse.Code.
const (
	CodeNotFound        = "not_found"
	CodeUnavailable     = "unavailable"
	CodeConflict        = "conflict"
	CodeInvalidState    = "invalid_state"
	CodeForbidden       = "forbidden"
	CodeValidation      = "validation"
	CodeUnauthenticated = "unauthenticated"
	CodeTransient       = "transient"
	CodeInternal        = "internal"
)

// --- Response Types ---

// ErrorResponse is the standard error response format for all API errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// --- Error Response Helpers ---

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, Code: code})
}

func respondBadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, CodeValidation, message)
}

// respondInternalError logs the error and sends a 500 without exposing it.
func respondInternalError(c *gin.Context, err error, op string) {
	log.Printf("[HTTP] Internal error (%s): %v", op, err)
	respondError(c, http.StatusInternalServerError, CodeInternal, "internal server error")
}

// respondLendingError maps domain and policy errors to a status code and
// error code. Anything unrecognised becomes a 500.
func respondLendingError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, policy.ErrUnauthenticated):
		respondError(c, http.StatusUnauthorized, CodeUnauthenticated, err.Error())
	case errors.Is(err, policy.ErrForbidden), errors.Is(err, lending.ErrForbidden):
		respondError(c, http.StatusForbidden, CodeForbidden, err.Error())
	case errors.Is(err, lending.ErrNotFound),
		errors.Is(err, catalog.ErrBookNotFound),
		errors.Is(err, members.ErrMemberNotFound):
		respondError(c, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, lending.ErrUnavailable):
		respondError(c, http.StatusBadRequest, CodeUnavailable, err.Error())
	case errors.Is(err, lending.ErrConflict):
		respondError(c, http.StatusBadRequest, CodeConflict, err.Error())
	case errors.Is(err, lending.ErrInvalidState):
		respondError(c, http.StatusBadRequest, CodeInvalidState, err.Error())
	case errors.Is(err, lending.ErrValidation):
		respondError(c, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, catalog.ErrDuplicateISBN), errors.Is(err, catalog.ErrBookInUse):
		respondError(c, http.StatusConflict, CodeConflict, err.Error())
	case errors.Is(err, lending.ErrTransient),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		log.Printf("[HTTP] %s: %v", op, err)
		respondError(c, http.StatusServiceUnavailable, CodeTransient, lending.ErrTransient.Error())
	default:
		respondInternalError(c, err, op)
	}
}

// --- Parameter Parsing ---

// parseIDParam extracts and validates an unsigned integer ID from URL parameters.
// Returns the parsed ID or responds with a 400 error and returns 0, false.
func parseIDParam(c *gin.Context, paramName string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(paramName), 10, 32)
	if err != nil || id == 0 {
		respondBadRequest(c, "invalid "+paramName)
		return 0, false
	}
	return uint(id), true
}

// parseOptionalQueryID parses an optional positive ID from the query string.
func parseOptionalQueryID(c *gin.Context, name string) (*uint, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		respondBadRequest(c, "invalid "+name)
		return nil, false
	}
	value := uint(id)
	return &value, true
}

// maxPageSize bounds the limit a client may ask for on any list endpoint.
const maxPageSize = catalog.DefaultListLimit

// parsePagination reads limit and offset. Both default to zero, which the
// stores treat as "use the default page size" and "from the start". Larger
// limits are clamped to maxPageSize.
func parsePagination(c *gin.Context) (limit, offset int, ok bool) {
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			respondBadRequest(c, "invalid limit")
			return 0, 0, false
		}
		limit = min(v, maxPageSize)
	}
	if raw := c.Query("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			respondBadRequest(c, "invalid offset")
			return 0, 0, false
		}
		offset = v
	}
	return limit, offset, true
}

// parseTruthy treats true, 1 and yes (any case) as true and anything else as false.
func parseTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// actorFromContext describes the request for audit events.
func actorFromContext(c *gin.Context) audit.Actor {
	return audit.Actor{
		UserID:    auth.GetUserID(c),
		RequestID: c.GetString(auth.ContextKeyRequestID),
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
