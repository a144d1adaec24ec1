package controller

import (
	"encoding/json"
	"net/http"

	"compliance-stream/logger"
	"compliance-stream/src/config"
	"compliance-stream/src/models"
	"compliance-stream/src/rabbitmq"
	"compliance-stream/src/utils"

	"github.com/gin-gonic/gin"
)

type AdminController struct {
	Publisher rabbitmq.Publisher
}

func NewAdminController(publisher rabbitmq.Publisher) *AdminController {
	return &AdminController{
		Publisher: publisher,
	}
}

// PublishResponse represents the response after publishing a task update
type PublishResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// PublishTaskUpdate godoc
// @Summary publish task update
// @Param TaskUpdate body models.TaskUpdate true "Task Update"
// @Schemes
// @Description publish a task update to the fanout exchange, for operational testing
// @Tags admin
// @Accept json
// @Produce json
// @Success 200 {object} PublishResponse
// @Failure 400 {object} schemas.ErrorResponse
// @Failure 403 {object} schemas.ErrorResponse
// @Failure 500 {object} schemas.ErrorResponse
// @Router /admin/tasks/publish [post]
func (c *AdminController) PublishTaskUpdate(ctx *gin.Context) {
	var update models.TaskUpdate
	if err := ctx.ShouldBindJSON(&update); err != nil {
		utils.SendError(ctx, http.StatusBadRequest, "Bad Request", "Invalid JSON format: "+err.Error(), "/admin/tasks/publish")
		return
	}

	body, err := json.Marshal(update)
	if err != nil {
		utils.SendError(ctx, http.StatusInternalServerError, "Internal Error", "Failed to marshal task update: "+err.Error(), "/admin/tasks/publish")
		return
	}

	if err := c.Publisher.Publish(config.TaskUpdatesExchange, body); err != nil {
		utils.SendError(ctx, http.StatusInternalServerError, "Internal Error", "Failed to publish task update: "+err.Error(), "/admin/tasks/publish")
		return
	}

	logger.Logger.Infof("Published task update for task %d with status %s", update.TaskID, update.Status)

	ctx.JSON(http.StatusOK, PublishResponse{
		Status:  "success",
		Message: "Task update published",
	})
}
