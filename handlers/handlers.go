// Package handlers exposes the library over HTTP. Handlers only translate
// between JSON and library calls; set semantics live in package playset.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"playset/controller"
	"playset/database"
	"playset/metrics"
	"playset/models"
	"playset/playset"
	"playset/sentry"
	"playset/sentryhelper"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Name  string `json:"name,omitempty"`
}

type SetResponse struct {
	Name  string        `json:"name"`
	Count int           `json:"count"`
	Items []models.Song `json:"items"`
}

type ExpressionResponse struct {
	Name       string   `json:"name"`
	Expression string   `json:"expression"`
	References []string `json:"references"`
}

type CreateSetRequest struct {
	Name string `json:"name" binding:"required"`
}

type CombineRequest struct {
	Op      string `json:"op" binding:"required"`
	Operand string `json:"operand" binding:"required"`
}

type AddItemRequest struct {
	Item string `json:"item" binding:"required"`
}

type LoadsResponse struct {
	Loads       []database.LoadRecord `json:"loads"`
	CachedSongs int                   `json:"cached_songs"`
}

type Manager struct {
	Controller *controller.Controller
	History    *database.Database
	logger     *log.Entry
}

// NewManager creates the HTTP handlers. history may be nil when loads are
// not recorded.
func NewManager(c *controller.Controller, history *database.Database) *Manager {
	return &Manager{
		Controller: c,
		History:    history,
		logger: log.WithFields(log.Fields{
			"module": "handlers",
		}),
	}
}

// Register mounts every route on router.
func (m *Manager) Register(router gin.IRouter) {
	router.GET("/healthz", m.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/reload", m.Reload)
	router.GET("/loads", m.Loads)

	sets := router.Group("/sets")
	sets.Use(m.RecordMetrics())
	sets.GET("", m.ListSets)
	sets.POST("", m.CreateSet)
	sets.GET("/:name", m.GetSet)
	sets.GET("/:name/expression", m.GetExpression)
	sets.POST("/:name/combine", m.Combine)
	sets.POST("/:name/items", m.AddItem)
	sets.DELETE("/:name", m.DeleteSet)
}

// RecordMetrics records request counts and latencies per route template.
func (m *Manager) RecordMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *Manager) Health(c *gin.Context) {
	status := m.Controller.Status()
	code := http.StatusOK
	if status.State != controller.Ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (m *Manager) Reload(c *gin.Context) {
	if err := m.Controller.Reload(); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Kind: "store"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}

// Loads lists the most recent library loads and the size of the metadata
// cache.
func (m *Manager) Loads(c *gin.Context) {
	if m.History == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "load history is not recorded", Kind: "request"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer", Kind: "request"})
		return
	}

	loads, err := m.History.GetLoadHistory(limit)
	if err == nil {
		var cached int
		if cached, err = m.History.CountSongs(); err == nil {
			if loads == nil {
				loads = []database.LoadRecord{}
			}
			c.JSON(http.StatusOK, LoadsResponse{Loads: loads, CachedSongs: cached})
			return
		}
	}
	m.fail(c, "", err)
}

func (m *Manager) library(c *gin.Context) (*playset.Library, bool) {
	lib, err := m.Controller.Library()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Kind: "loading"})
		return nil, false
	}
	return lib, true
}

func (m *Manager) ListSets(c *gin.Context) {
	lib, ok := m.library(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"sets": lib.Names()})
}

func (m *Manager) GetSet(c *gin.Context) {
	lib, ok := m.library(c)
	if !ok {
		return
	}
	name := c.Param("name")

	ctx, transaction := sentryhelper.StartTransaction(c.Request.Context(), "flatten", name)
	defer transaction.Finish()

	start := time.Now()
	span := sentryhelper.StartSpan(ctx, "playset.flatten")
	items, err := lib.FlattenSet(name)
	span.Finish()
	metrics.FlattenDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FlattenTotal.WithLabelValues(playset.Kind(err)).Inc()
		sentryhelper.AddBreadcrumb(ctx, "flatten", err.Error())
		m.fail(c, name, err)
		return
	}
	metrics.FlattenTotal.WithLabelValues("ok").Inc()

	c.JSON(http.StatusOK, SetResponse{
		Name:  name,
		Count: len(items),
		Items: items.Sorted(),
	})
}

func (m *Manager) GetExpression(c *gin.Context) {
	lib, ok := m.library(c)
	if !ok {
		return
	}
	name := c.Param("name")
	p, found := lib.Get(name)
	if !found {
		m.fail(c, name, &playset.ReferenceError{Name: name, Err: playset.ErrUnknownSetReference})
		return
	}
	c.JSON(http.StatusOK, ExpressionResponse{
		Name:       name,
		Expression: p.Root.String(),
		References: p.Root.References(),
	})
}

func (m *Manager) CreateSet(c *gin.Context) {
	lib, ok := m.library(c)
	if !ok {
		return
	}
	var req CreateSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "request"})
		return
	}
	if err := lib.PushEmptySet(req.Name); err != nil {
		m.edited(c, "create", req.Name, err)
		return
	}
	if !m.persist(c, lib, req.Name) {
		return
	}
	m.edited(c, "create", req.Name, nil)
	c.JSON(http.StatusCreated, gin.H{"name": req.Name})
}

func (m *Manager) Combine(c *gin.Context) {
	lib, ok := m.library(c)
	if !ok {
		return
	}
	name := c.Param("name")
	var req CombineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "request"})
		return
	}
	op, err := playset.ParseOp(req.Op)
	if err == nil {
		err = lib.Combine(name, op, req.Operand)
	}
	if err != nil {
		m.edited(c, "combine", name, err)
		return
	}
	if !m.persist(c, lib, name) {
		return
	}
	m.edited(c, "combine", name, nil)
	m.GetExpression(c)
}

func (m *Manager) AddItem(c *gin.Context) {
	lib, ok := m.library(c)
	if !ok {
		return
	}
	name := c.Param("name")
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "request"})
		return
	}
	if err := lib.AddItem(name, req.Item); err != nil {
		m.edited(c, "add_item", name, err)
		return
	}
	if !m.persist(c, lib, name) {
		return
	}
	m.edited(c, "add_item", name, nil)
	m.GetExpression(c)
}

func (m *Manager) DeleteSet(c *gin.Context) {
	lib, ok := m.library(c)
	if !ok {
		return
	}
	name := c.Param("name")
	if err := lib.Delete(name); err != nil {
		m.edited(c, "delete", name, err)
		return
	}
	m.edited(c, "delete", name, nil)
	c.Status(http.StatusNoContent)
}

// persist writes name to disk when the library is backed by a directory.
func (m *Manager) persist(c *gin.Context, lib *playset.Library, name string) bool {
	if lib.SubsetsDir() == "" {
		return true
	}
	if err := lib.Persist(name); err != nil {
		m.edited(c, "persist", name, err)
		return false
	}
	return true
}

func (m *Manager) edited(c *gin.Context, kind, name string, err error) {
	if err == nil {
		metrics.EditsTotal.WithLabelValues(kind, "ok").Inc()
		m.logger.Infof("%s %s", kind, name)
		return
	}
	metrics.EditsTotal.WithLabelValues(kind, playset.Kind(err)).Inc()
	m.fail(c, name, err)
}

func (m *Manager) fail(c *gin.Context, name string, err error) {
	code := StatusFor(err)
	if code >= http.StatusInternalServerError {
		m.logger.Errorf("request for %s failed: %v", name, err)
		if hub := sentrygin.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		} else {
			sentry.ReportError(err)
		}
	}
	c.JSON(code, ErrorResponse{
		Error: err.Error(),
		Kind:  playset.Kind(err),
		Name:  name,
	})
}

// StatusFor maps library errors to HTTP status codes.
func StatusFor(err error) int {
	var parseErr *playset.ParseError
	switch {
	case errors.Is(err, playset.ErrInvalidName),
		errors.Is(err, playset.ErrReservedCharacter),
		errors.Is(err, playset.ErrUnknownOperator):
		return http.StatusBadRequest
	case errors.Is(err, playset.ErrDuplicateName),
		errors.Is(err, playset.ErrCyclicReference),
		errors.Is(err, playset.ErrImmutableUniversal):
		return http.StatusConflict
	case errors.Is(err, playset.ErrUnknownSetReference):
		return http.StatusNotFound
	case errors.As(err, &parseErr), errors.Is(err, playset.ErrUnresolvedItemName):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
