package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/LJTian/NewsDigest/internal/pipeline"
	"github.com/LJTian/NewsDigest/internal/scheduler"
	"github.com/LJTian/NewsDigest/internal/storage"
)

// Runner 手动触发与状态查询，由 scheduler 提供
type Runner interface {
	ExecuteNow(ctx context.Context) (pipeline.TaskResult, error)
	Status() scheduler.Status
}

// Pipeline 缓存清理与自检
type Pipeline interface {
	ClearCache(ctx context.Context) error
	SelfTest(ctx context.Context) pipeline.SelfTestReport
}

// Store 历史数据查询，未配置数据库时为 nil
type Store interface {
	LatestDigest(ctx context.Context) (*storage.Digest, error)
	ListDigests(ctx context.Context, limit int) ([]storage.Digest, error)
	ListNews(ctx context.Context, q storage.NewsQuery) ([]storage.News, error)
	ListSources(ctx context.Context) ([]storage.Source, error)
	SetSourceEnabled(ctx context.Context, id string, enabled bool) error
}

type Server struct {
	runner   Runner
	pipeline Pipeline
	store    Store
	logger   *zerolog.Logger
}

func NewServer(runner Runner, p Pipeline, store Store, logger *zerolog.Logger) *Server {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Server{runner: runner, pipeline: p, store: store, logger: logger}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/status", s.status)
		v1.POST("/run", s.run)
		v1.POST("/test", s.selfTest)
		v1.DELETE("/cache", s.clearCache)

		v1.GET("/digest/latest", s.latestDigest)
		v1.GET("/digests", s.listDigests)
		v1.GET("/news", s.listNews)
		v1.GET("/sources", s.listSources)
		v1.PUT("/sources/:id", s.updateSource)
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	ok(c, gin.H{"scheduler": s.runner.Status()})
}

func (s *Server) run(c *gin.Context) {
	// 客户端断开不应中断正在进行的采集
	ctx := context.WithoutCancel(c.Request.Context())
	res, err := s.runner.ExecuteNow(ctx)
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		fail(c, http.StatusConflict, "already_running", err.Error())
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("manual run failed")
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	if !res.Success {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "run_failed",
			"message": res.Message,
			"data":    res,
		})
		return
	}
	ok(c, res)
}

func (s *Server) selfTest(c *gin.Context) {
	ok(c, s.pipeline.SelfTest(c.Request.Context()))
}

func (s *Server) clearCache(c *gin.Context) {
	if err := s.pipeline.ClearCache(c.Request.Context()); err != nil {
		s.logger.Error().Err(err).Msg("clear cache failed")
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	ok(c, nil)
}

func (s *Server) requireStore(c *gin.Context) bool {
	if s.store == nil {
		fail(c, http.StatusServiceUnavailable, "storage_disabled", "storage is not configured")
		return false
	}
	return true
}

func (s *Server) latestDigest(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	d, err := s.store.LatestDigest(c.Request.Context())
	if errors.Is(err, storage.ErrNotFound) {
		fail(c, http.StatusNotFound, "not_found", "no digest yet")
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	ok(c, d)
}

func (s *Server) listDigests(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	list, err := s.store.ListDigests(c.Request.Context(), queryInt(c, "limit", 20))
	if err != nil {
		s.internalError(c, err)
		return
	}
	ok(c, list)
}

func (s *Server) listNews(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	date := c.Query("date")
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			fail(c, http.StatusBadRequest, "bad_request", "date must be YYYY-MM-DD")
			return
		}
	}
	sort := c.DefaultQuery("sort", "latest")
	if sort != "latest" && sort != "score" {
		sort = "latest"
	}

	items, err := s.store.ListNews(c.Request.Context(), storage.NewsQuery{
		Category: c.Query("category"),
		Sort:     sort,
		Limit:    queryInt(c, "limit", 20),
		Date:     date,
	})
	if err != nil {
		s.internalError(c, err)
		return
	}
	ok(c, items)
}

func (s *Server) listSources(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	list, err := s.store.ListSources(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	ok(c, list)
}

type updateSourceRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (s *Server) updateSource(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	var req updateSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bad_request", "enabled is required")
		return
	}
	id := c.Param("id")
	err := s.store.SetSourceEnabled(c.Request.Context(), id, *req.Enabled)
	if errors.Is(err, storage.ErrNotFound) {
		fail(c, http.StatusNotFound, "not_found", "unknown source "+id)
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	ok(c, gin.H{"id": id, "enabled": *req.Enabled})
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
}

func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// BasicAuth 为整个站点增加一个简单的 Basic Auth 访问密码，/health 不做认证，便于健康检查
func BasicAuth(user, pass string) gin.HandlerFunc {
	const realm = "Restricted"
	uBytes := []byte(user)
	pBytes := []byte(pass)

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), uBytes) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), pBytes) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="`+realm+`"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

// RequestLogger 用 zerolog 记录每个请求
func RequestLogger(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}
