package server

import (
	"net/http"
	"strconv"

	"yamdb/internal/domain/errors"
	"yamdb/internal/validation"

	"github.com/gin-gonic/gin"
)

// writeError maps the error taxonomy onto HTTP statuses. Unknown errors are
// logged and reported as a generic 500.
func (api *API) writeError(ctx *gin.Context, err error) {
	var verr *errors.ValidationError
	if errors.As(err, &verr) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": verr.Unwrap().Error(), "fields": verr.Fields})
		return
	}

	switch {
	case errors.Is(err, errors.ErrInvalidInput), errors.Is(err, errors.ErrBadRequest):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errors.ErrConflict):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errors.ErrUnauthenticated):
		ctx.Header("WWW-Authenticate", `Bearer realm="api"`)
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, errors.ErrForbidden):
		ctx.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, errors.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, errors.ErrRateLimited):
		ctx.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		api.log.ErrorContext(ctx.Request.Context(), "request failed",
			"method", ctx.Request.Method,
			"path", ctx.Request.URL.Path,
			"request_id", ctx.GetString(requestIDKey),
			"error", err,
		)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errors.ErrInternalServer.Error()})
	}
}

// bind decodes the JSON body into req and validates it. Unknown fields are
// ignored.
func bind(ctx *gin.Context, req any) error {
	if err := ctx.ShouldBindJSON(req); err != nil {
		return errors.ErrBadRequest
	}
	return validation.Struct(req)
}

// idParam parses a numeric path parameter. Anything that is not a positive
// integer cannot name an object, so it reports notFound.
func idParam(ctx *gin.Context, name string, notFound error) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, notFound
	}
	return id, nil
}
