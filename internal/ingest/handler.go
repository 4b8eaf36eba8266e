package ingest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"weld/internal/logger"
	"weld/internal/orchestration"
	"weld/pkg/errors"
	"weld/pkg/models"
)

type BaseHandler struct {
	Logger logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

// Handler exposes the webhook ingress and batch status endpoints.
type Handler struct {
	BaseHandler
	dispatcher *orchestration.Dispatcher
	store      orchestration.Store
}

func NewHandler(dispatcher *orchestration.Dispatcher, store orchestration.Store, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{Logger: log},
		dispatcher:  dispatcher,
		store:       store,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/notifications", h.PostNotification)
		v1.GET("/batches/:id", h.GetBatch)
	}
}

// PostNotification godoc
// @Summary      Submit an upload notification
// @Description  Accepts a storage upload notification and routes it to the batch it belongs to
// @Tags         notifications
// @Accept       json
// @Produce      json
// @Param        notification  body      models.Notification  true  "Upload notification"
// @Success      202           {object}  models.DispatchInfo
// @Failure      400           {object}  map[string]interface{}
// @Failure      503           {object}  map[string]interface{}
// @Router       /notifications [post]
func (h *Handler) PostNotification(c *gin.Context) {
	var msg models.Notification
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Source == "" {
		msg.Source = "webhook"
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	info, err := h.dispatcher.Dispatch(c.Request.Context(), msg)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, info)
}

// GetBatch godoc
// @Summary      Get batch status
// @Description  Returns the orchestration state of a batch
// @Tags         batches
// @Accept       json
// @Produce      json
// @Param        id   path      string  true  "Batch ID"
// @Success      200  {object}  orchestration.Instance
// @Failure      404  {object}  map[string]interface{}
// @Router       /batches/{id} [get]
func (h *Handler) GetBatch(c *gin.Context) {
	id := c.Param("id")

	inst, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, inst)
}
