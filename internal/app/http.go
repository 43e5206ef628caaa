package app

import (
	"net/http"
	"strconv"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/taskforge/orchestrator/internal/domain/task"
	"github.com/taskforge/orchestrator/internal/orchestrator/api"
	"github.com/taskforge/orchestrator/internal/platform/apierr"
)

// wireRouter exposes the Orchestrator API (C9) as REST, grounded on the
// teacher's http.NewRouter/wireRouter split — the operation surface itself
// is the spec's concern (§4.9); this HTTP binding is ambient plumbing the
// teacher always carries and is out of scope for the core logic itself.
func wireRouter(a *App) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())
	r.Use(otelgin.Middleware("orchestratord"))

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.GET("/ws/notifications", func(c *gin.Context) {
		userID, err := uuid.Parse(c.Query("userId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "userId query param required"})
			return
		}
		conn, err := a.Hub.Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		a.Hub.Register(userID, conn)
		defer a.Hub.Unregister(userID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	tasks := r.Group("/tasks")
	{
		tasks.POST("", func(c *gin.Context) { handleInitializeTask(c, a.API) })
		tasks.GET("", func(c *gin.Context) { handleListTasks(c, a.API) })
		tasks.POST("/:id/execute", func(c *gin.Context) { handleExecuteTask(c, a.API) })
		tasks.POST("/:id/pause", func(c *gin.Context) { handlePauseTask(c, a.API) })
		tasks.POST("/:id/resume", func(c *gin.Context) { handleResumeTask(c, a.API) })
		tasks.POST("/:id/cancel", func(c *gin.Context) { handleCancelTask(c, a.API) })
		tasks.POST("/:id/input/:step", func(c *gin.Context) { handleProvideUserInput(c, a.API) })
		tasks.GET("/:id/status", func(c *gin.Context) { handleGetStatus(c, a.API) })
		tasks.GET("/:id/steps/:step", func(c *gin.Context) { handleGetStepResult(c, a.API) })
	}
	r.GET("/orchestration/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.API.GetOrchestrationStats())
	})

	return r
}

type initializeTaskRequest struct {
	Title       string         `json:"title" binding:"required"`
	Description string         `json:"description"`
	ProjectID   *uuid.UUID     `json:"projectId"`
	Priority    task.Priority  `json:"priority"`
	Type        string         `json:"type" binding:"required"`
	Tags        []string       `json:"tags"`
	CreatedBy   *uuid.UUID     `json:"createdBy"`
	AssignedTo  *uuid.UUID     `json:"assignedTo"`
	InitialData map[string]any `json:"initialData"`
}

func handleInitializeTask(c *gin.Context, a *api.API) {
	var req initializeTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := a.InitializeTask(c.Request.Context(), api.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		ProjectID:   req.ProjectID,
		Priority:    req.Priority,
		Type:        req.Type,
		Tags:        req.Tags,
		CreatedBy:   req.CreatedBy,
		AssignedTo:  req.AssignedTo,
	}, req.InitialData)
	if writeAPIError(c, err) {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"taskId": id})
}

func handleExecuteTask(c *gin.Context, a *api.API) {
	id, ok := pathTaskID(c)
	if !ok {
		return
	}
	status, err := a.ExecuteTask(c.Request.Context(), id)
	if writeAPIError(c, err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func handlePauseTask(c *gin.Context, a *api.API) {
	id, ok := pathTaskID(c)
	if !ok {
		return
	}
	reason := c.Query("reason")
	if err := a.PauseTask(c.Request.Context(), id, reason); writeAPIError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func handleResumeTask(c *gin.Context, a *api.API) {
	id, ok := pathTaskID(c)
	if !ok {
		return
	}
	if err := a.ResumeTask(c.Request.Context(), id); writeAPIError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func handleCancelTask(c *gin.Context, a *api.API) {
	id, ok := pathTaskID(c)
	if !ok {
		return
	}
	reason := c.Query("reason")
	if err := a.CancelTask(c.Request.Context(), id, reason); writeAPIError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func handleProvideUserInput(c *gin.Context, a *api.API) {
	id, ok := pathTaskID(c)
	if !ok {
		return
	}
	step := c.Param("step")
	var input map[string]any
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.ProvideUserInput(c.Request.Context(), id, step, input); writeAPIError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func handleGetStatus(c *gin.Context, a *api.API) {
	id, ok := pathTaskID(c)
	if !ok {
		return
	}
	status, err := a.GetStatus(c.Request.Context(), id)
	if writeAPIError(c, err) {
		return
	}
	c.JSON(http.StatusOK, status)
}

func handleGetStepResult(c *gin.Context, a *api.API) {
	id, ok := pathTaskID(c)
	if !ok {
		return
	}
	result, err := a.GetStepResult(c.Request.Context(), id, c.Param("step"))
	if writeAPIError(c, err) {
		return
	}
	c.JSON(http.StatusOK, result)
}

func handleListTasks(c *gin.Context, a *api.API) {
	filters := task.ListFilters{
		State:    c.Query("state"),
		Priority: task.Priority(c.Query("priority")),
		Type:     c.Query("type"),
		Tag:      c.Query("tag"),
	}
	if pid := c.Query("projectId"); pid != "" {
		if id, err := uuid.Parse(pid); err == nil {
			filters.ProjectID = &id
		}
	}
	page := task.ListPage{
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}
	sort := task.ListSort{Field: c.DefaultQuery("sortBy", "created_at"), Desc: c.Query("sortDesc") == "true"}

	rows, total, err := a.ListTasks(c.Request.Context(), filters, page, sort)
	if writeAPIError(c, err) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": rows, "total": total})
}

func pathTaskID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

// writeAPIError translates an apierr.Error into its declared HTTP status,
// matching how the teacher's handlers surface service-layer errors.
func writeAPIError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	status := http.StatusInternalServerError
	var ae *apierr.Error
	if e, ok := err.(*apierr.Error); ok {
		ae = e
		status = ae.Status
	}
	c.JSON(status, gin.H{"error": err.Error()})
	return true
}
