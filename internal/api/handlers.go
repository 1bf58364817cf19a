package api

import (
	"Minerva/internal/gateway"
	"Minerva/internal/models"
	"Minerva/internal/orchestrator"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler 封装了所有 API endpoint 的处理函数。
type Handler struct {
	engine  *orchestrator.Engine
	gateway *gateway.Gateway
}

// NewHandler 创建一个新的 Handler 实例。
func NewHandler(engine *orchestrator.Engine, gw *gateway.Gateway) *Handler {
	return &Handler{engine: engine, gateway: gw}
}

// Chat 处理一次会话请求。降级（记忆不可用、校验无结论）仍返回 200，
// 详情在响应元数据里；只有致命错误才返回错误状态码。
func (h *Handler) Chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: err.Error(),
			Kind:  string(models.ErrKindInputRejected),
		})
		return
	}

	resp, err := h.engine.Handle(c.Request.Context(), req)
	if err != nil {
		c.JSON(statusForError(err), models.ErrorResponse{
			Error:     err.Error(),
			Kind:      string(models.KindOf(err)),
			Retryable: models.Retryable(err),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Health 返回服务及各提供商熔断器的状态。
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"providers": h.gateway.Health(),
	})
}

// statusForError 把流水线错误分类映射到 HTTP 状态码。
func statusForError(err error) int {
	switch models.KindOf(err) {
	case models.ErrKindInputRejected:
		return http.StatusBadRequest
	case models.ErrKindProviderExhausted:
		return http.StatusServiceUnavailable
	case models.ErrKindMemoryUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
