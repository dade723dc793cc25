package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"yamdb/internal/domain/errors"
	"yamdb/internal/domain/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-Id"
	requestIDKey    = "request_id"
	actorKey        = "actor"
	tokenCookie     = "jwt_token"
)

// RequestID propagates an incoming X-Request-Id or generates one.
func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := strings.TrimSpace(ctx.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Set(requestIDKey, id)
		ctx.Header(requestIDHeader, id)
		ctx.Next()
	}
}

// RequestLogger emits one structured line per request.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		level := slog.LevelInfo
		if ctx.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(ctx.Request.Context(), level, "http_request",
			"method", ctx.Request.Method,
			"path", ctx.Request.URL.Path,
			"status", ctx.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", ctx.GetString(requestIDKey),
		)
	}
}

// bearerToken returns the token from the Authorization header or, failing
// that, from the jwt_token cookie; fromCookie reports which one was used.
func bearerToken(ctx *gin.Context) (raw string, fromCookie bool) {
	header := ctx.GetHeader("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token), false
	}
	if cookie, err := ctx.Cookie(tokenCookie); err == nil && cookie != "" {
		return cookie, true
	}
	return "", false
}

// authenticate resolves the actor from the bearer token. Requests without a
// token continue anonymously. A bad header token or a deleted user is
// rejected; a bad cookie is expired and the request continues anonymously.
func (api *API) authenticate() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		raw, fromCookie := bearerToken(ctx)
		if raw == "" {
			ctx.Next()
			return
		}

		user, err := api.resolveActor(ctx, raw)
		if err != nil {
			if fromCookie && errors.Is(err, errors.ErrUnauthenticated) {
				api.log.DebugContext(ctx.Request.Context(), "stale token cookie cleared",
					"request_id", ctx.GetString(requestIDKey))
				api.clearTokenCookie(ctx)
				ctx.Next()
				return
			}
			api.writeError(ctx, err)
			ctx.Abort()
			return
		}
		ctx.Set(actorKey, user)
		ctx.Next()
	}
}

func (api *API) resolveActor(ctx *gin.Context, raw string) (*models.User, error) {
	userID, err := api.tokens.Verify(raw)
	if err != nil {
		return nil, err
	}
	user, err := api.repo.GetUserByID(ctx.Request.Context(), userID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, errors.ErrInvalidToken
	}
	return user, err
}

func (api *API) setTokenCookie(ctx *gin.Context, tok string) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(tokenCookie, tok, int(api.tokenTTL.Seconds()), "/", "", false, true)
}

func (api *API) clearTokenCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(tokenCookie, "", -1, "/", "", false, true)
}

// actor returns the authenticated user or nil for anonymous requests.
func actor(ctx *gin.Context) *models.User {
	if v, ok := ctx.Get(actorKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}
