package utils

import (
	"compliance-stream/src/schemas"

	"github.com/bytedance/gopkg/util/logger"
	"github.com/gin-gonic/gin"
)

func SendError(ctx *gin.Context, status int, title string, detail string, instance string) {
	errorResp := schemas.NewErrorResponse(status, title, detail, instance)
	ctx.JSON(status, errorResp)
	logger.Error("Error: ", detail)
}
