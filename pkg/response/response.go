package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// PageData 分页数据
type PageData struct {
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
	List   interface{} `json:"list"`
}

func write(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, Response{Code: status, Message: message, Data: data})
}

// Success 200
func Success(c *gin.Context, data interface{}) {
	write(c, http.StatusOK, "success", data)
}

// Accepted 202，异步任务已受理
func Accepted(c *gin.Context, data interface{}) {
	write(c, http.StatusAccepted, "accepted", data)
}

// BadRequest 400
func BadRequest(c *gin.Context, message string) {
	write(c, http.StatusBadRequest, message, nil)
}

// Unauthorized 401
func Unauthorized(c *gin.Context, message string) {
	c.Abort()
	write(c, http.StatusUnauthorized, message, nil)
}

// Forbidden 403
func Forbidden(c *gin.Context, message string) {
	c.Abort()
	write(c, http.StatusForbidden, message, nil)
}

// NotFound 404
func NotFound(c *gin.Context, message string) {
	write(c, http.StatusNotFound, message, nil)
}

// Conflict 409
func Conflict(c *gin.Context, message string) {
	write(c, http.StatusConflict, message, nil)
}

// ServiceUnavailable 503
func ServiceUnavailable(c *gin.Context, message string) {
	write(c, http.StatusServiceUnavailable, message, nil)
}

// InternalError 500，错误详情只记录到上下文，不返回给调用方
func InternalError(c *gin.Context, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	write(c, http.StatusInternalServerError, "internal server error", nil)
}
