package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/handlers"
	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/middleware"
	"github.com/EdisonLim17/ai-tech-support-chatbot/services/chatbot/pipeline"
)

// SetupRoutes registers the service's HTTP surface: liveness, metrics, and
// the versioned websocket chat endpoint. apiKey may be empty to leave the
// chat endpoint open for local use.
func SetupRoutes(router *gin.Engine, pipe *pipeline.Pipeline, apiKey string) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1", middleware.APIKeyAuth(apiKey))
	{
		v1.GET("/chat/ws", handlers.HandleChatWebSocket(pipe))
	}
}
