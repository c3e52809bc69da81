package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/payout-engine/internal/service"
	"github.com/d60-Lab/payout-engine/pkg/response"
)

// Handler HTTP 处理器
type Handler struct {
	distService  service.DistributionService
	queryService service.QueryService
}

func NewHandler(distService service.DistributionService, queryService service.QueryService) *Handler {
	return &Handler{distService: distService, queryService: queryService}
}

// Health 健康检查
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} response.Response
// @Router /health [get]
func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// fail 将业务错误映射为 HTTP 状态码
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrProjectNotFound), errors.Is(err, service.ErrDistributionNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrInvalidTransition):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrQueueFull):
		response.ServiceUnavailable(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
