package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"yamdb/internal/domain/errors"
	"yamdb/internal/mail"
	"yamdb/internal/metrics"
	"yamdb/internal/ratelimit"
	"yamdb/internal/registration"
	"yamdb/internal/token"

	"github.com/gin-gonic/gin"
)

const apiPrefix = "/api/v1"

// Deps are the optional collaborators of the API. Zero values get working
// defaults: a logging mail sender, a fresh metrics registry, no rate limit.
type Deps struct {
	Mailer  mail.Sender
	Tokens  *token.Issuer
	Metrics *metrics.Metrics
	Limiter ratelimit.Limiter
	Logger  *slog.Logger
}

type API struct {
	httpSrv      *http.Server
	repo         Repository
	tokens       *token.Issuer
	registration *registration.Service
	metrics      *metrics.Metrics
	limiter      ratelimit.Limiter
	log          *slog.Logger
	tokenTTL     time.Duration
}

func NewAPI(repo Repository, cfg *Config, deps Deps) (*API, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tokens := deps.Tokens
	if tokens == nil {
		var err error
		tokens, err = token.NewIssuer(cfg.JWTSecret, cfg.TokenTTL.Duration)
		if err != nil {
			return nil, err
		}
	}
	mailer := deps.Mailer
	if mailer == nil {
		mailer = mail.NewLogSender(logger)
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	api := &API{
		httpSrv: &http.Server{
			Addr:              cfg.ListenAddr(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		repo:    repo,
		tokens:  tokens,
		metrics: m,
		limiter: deps.Limiter,
		log:     logger,
		registration: registration.NewService(repo, mailer, tokens,
			registration.WithRecorder(m),
			registration.WithLogger(logger),
		),
		tokenTTL: cfg.TokenTTL.Duration,
	}
	api.configRoutes()
	return api, nil
}

func (api *API) Start() error {
	if api.httpSrv == nil {
		return errors.ErrInternalServer
	}
	if api.httpSrv.Addr == "" {
		api.httpSrv.Addr = ":8080"
	}
	return api.httpSrv.ListenAndServe()
}

func (api *API) Shutdown(ctx context.Context) error {
	return api.httpSrv.Shutdown(ctx)
}

func (api *API) Handler() http.Handler {
	return api.httpSrv.Handler
}

func (api *API) configRoutes() {
	router := gin.New()
	router.HandleMethodNotAllowed = true

	router.Use(
		gin.Recovery(),
		RequestID(),
		RequestLogger(api.log),
		api.metrics.Middleware(),
		GzipRequestDecompress(),
		GzipResponseCompress(),
	)

	router.NoMethod(func(ctx *gin.Context) {
		ctx.JSON(http.StatusMethodNotAllowed, gin.H{"error": "использован некорректный HTTP-метод"})
	})
	router.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "страница не найдена"})
	})

	router.GET("/metrics", gin.WrapH(api.metrics.Handler()))
	router.GET("/healthz", api.healthz)

	v1 := router.Group(apiPrefix, api.authenticate())

	auth := v1.Group("/auth")
	if api.limiter != nil {
		auth.Use(ratelimit.Limit(api.limiter, ratelimit.ClientIP, api.log))
	}
	{
		auth.POST("/signup", api.signup)
		auth.POST("/token", api.obtainToken)
	}

	users := v1.Group("/users")
	{
		users.GET("", api.listUsers)
		users.POST("", api.createUser)
		users.GET("/me", api.getMe)
		users.PATCH("/me", api.updateMe)
		users.DELETE("/me", api.deleteMe)
		users.GET("/:username", api.getUser)
		users.PATCH("/:username", api.updateUser)
		users.DELETE("/:username", api.deleteUser)
	}

	categories := v1.Group("/categories")
	{
		categories.GET("", api.listCategories)
		categories.POST("", api.createCategory)
		categories.GET("/:slug", api.getCategory)
		categories.DELETE("/:slug", api.deleteCategory)
	}

	genres := v1.Group("/genres")
	{
		genres.GET("", api.listGenres)
		genres.POST("", api.createGenre)
		genres.GET("/:slug", api.getGenre)
		genres.DELETE("/:slug", api.deleteGenre)
	}

	titles := v1.Group("/titles")
	{
		titles.GET("", api.listTitles)
		titles.POST("", api.createTitle)
		titles.GET("/:title_id", api.getTitle)
		titles.PATCH("/:title_id", api.updateTitle)
		titles.DELETE("/:title_id", api.deleteTitle)

		reviews := titles.Group("/:title_id/reviews")
		reviews.GET("", api.listReviews)
		reviews.POST("", api.createReview)
		reviews.GET("/:review_id", api.getReview)
		reviews.PATCH("/:review_id", api.updateReview)
		reviews.DELETE("/:review_id", api.deleteReview)

		comments := reviews.Group("/:review_id/comments")
		comments.GET("", api.listComments)
		comments.POST("", api.createComment)
		comments.GET("/:comment_id", api.getComment)
		comments.PATCH("/:comment_id", api.updateComment)
		comments.DELETE("/:comment_id", api.deleteComment)
	}

	api.httpSrv.Handler = router
}

func (api *API) healthz(ctx *gin.Context) {
	if err := api.repo.Ping(ctx.Request.Context()); err != nil {
		api.log.ErrorContext(ctx.Request.Context(), "storage ping failed", "error", err)
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}
