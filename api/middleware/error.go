package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fyerfyer/meeting-QA-system/api/model"
	"github.com/fyerfyer/meeting-QA-system/internal/models"
	"github.com/fyerfyer/meeting-QA-system/pkg/storage"
	"github.com/fyerfyer/meeting-QA-system/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AppError 带HTTP状态码的应用错误
// 处理器可以通过c.Error把它交给错误中间件统一返回
type AppError struct {
	Code    int    // HTTP状态码
	Message string // 返回给客户端的消息
}

func (e AppError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// NewAppError 创建应用错误
func NewAppError(code int, message string) AppError {
	return AppError{Code: code, Message: message}
}

// statusForError 将领域哨兵错误映射为HTTP状态码
func statusForError(err error) (int, string) {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.Code, appErr.Message
	}

	switch {
	case errors.Is(err, models.ErrTranscriptNotFound),
		errors.Is(err, storage.ErrFileNotFound),
		errors.Is(err, taskqueue.ErrTaskNotFound):
		return http.StatusNotFound, "资源不存在"
	case errors.Is(err, models.ErrDuplicateTranscript):
		return http.StatusConflict, "相同内容的转写文件已存在"
	case errors.Is(err, models.ErrInvalidTranscriptStatus):
		return http.StatusConflict, "转写文件状态不允许该操作"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// ErrorMiddleware 统一错误处理中间件
// 恢复panic并把c.Errors中的错误转换为统一的响应信封
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(logrus.Fields{
					"error": r,
					"stack": string(debug.Stack()),
					"path":  c.Request.URL.Path,
				}).Error("Panic recovered in API request")

				resp := model.NewErrorResponse(http.StatusInternalServerError, "An unexpected error occurred")
				if gin.Mode() == gin.DebugMode {
					resp.Message = fmt.Sprintf("Panic: %v", r)
				}
				resp.TraceID = traceIDFrom(c)

				c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		status, message := statusForError(err)

		log.WithFields(logrus.Fields{
			"trace_id": traceIDFrom(c),
			"path":     c.Request.URL.Path,
			"status":   status,
		}).Error(err.Error())

		// 调试模式下内部错误返回具体原因
		if status == http.StatusInternalServerError && gin.Mode() == gin.DebugMode {
			message = err.Error()
		}

		resp := model.NewErrorResponse(status, message)
		resp.TraceID = traceIDFrom(c)

		c.AbortWithStatusJSON(status, resp)
	}
}

// traceIDFrom 从请求上下文中取出跟踪ID，不存在时返回空串
func traceIDFrom(c *gin.Context) string {
	if value, exists := c.Get("TraceID"); exists {
		if traceID, ok := value.(string); ok {
			return traceID
		}
	}
	return ""
}

// HandleError 在处理器中使用的错误处理辅助函数
func HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
}
