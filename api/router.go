package api

import (
	"github.com/fyerfyer/meeting-QA-system/api/handler"
	"github.com/fyerfyer/meeting-QA-system/api/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(
	fileHandler *handler.FileHandler,
	qaHandler *handler.QAHandler,
	chatHandler *handler.ChatHandler,
	taskHandler *handler.TaskHandler,
) *gin.Engine {
	// 创建默认的Gin路由引擎
	router := gin.Default()

	// 应用全局中间件
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	router.Use(middleware.SetTraceID())

	// 在调试模式下记录请求体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
	}

	// 健康检查API
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// 创建API分组
	api := router.Group("/api")
	{
		// 转写文件管理API
		fileGroup := api.Group("/files")
		{
			// 上传转写文件 - POST /api/files
			fileGroup.POST("", fileHandler.UploadFile)

			// 获取文件处理状态 - GET /api/files/:id/status
			fileGroup.GET("/:id/status", fileHandler.GetFileStatus)

			// 获取文件列表 - GET /api/files
			fileGroup.GET("", fileHandler.ListFiles)

			// 删除文件 - DELETE /api/files/:id
			fileGroup.DELETE("/:id", fileHandler.DeleteFile)

			// 获取文件相关任务 - GET /api/files/:id/tasks
			if taskHandler != nil {
				fileGroup.GET("/:id/tasks", taskHandler.GetTranscriptTasks)
			}
		}

		// 问答API
		qaGroup := api.Group("/qa")
		{
			// 回答问题 - POST /api/qa
			qaGroup.POST("", qaHandler.AnswerQuestion)
		}

		// 聊天API
		chatGroup := api.Group("/chat")
		{
			// 会话内提问（支持SSE流式） - POST /api/chat
			chatGroup.POST("", chatHandler.Chat)

			// 会话管理
			chatGroup.POST("/sessions", chatHandler.CreateChat)
			chatGroup.GET("/sessions", chatHandler.ListChats)
			chatGroup.GET("/sessions/:session_id", chatHandler.GetChatHistory)
			chatGroup.PATCH("/sessions/:session_id", chatHandler.RenameChat)
			chatGroup.DELETE("/sessions/:session_id", chatHandler.DeleteChat)
		}

		// 任务API
		if taskHandler != nil {
			taskGroup := api.Group("/tasks")
			{
				// 获取任务状态 - GET /api/tasks/:id
				taskGroup.GET("/:id", taskHandler.GetTaskStatus)

				// 任务回调 - POST /api/tasks/callback
				taskGroup.POST("/callback", taskHandler.HandleCallback)
			}
		}
	}

	return router
}

// Cors 跨域资源共享中间件
// 如果需要支持跨域请求，可以启用此中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
