package api

import "github.com/gin-gonic/gin"

// SetupRouter wires the HTTP surface.
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.Default()

	apiV1 := r.Group("/api/v1")
	{
		ingest := apiV1.Group("/ingest")
		{
			ingest.POST("/file", h.IngestFile)
			ingest.POST("/url", h.IngestURL)
			ingest.POST("/all", h.IngestAll)
		}

		apiV1.POST("/query", h.Query)
		apiV1.POST("/query/stream", h.QueryStream)

		chats := apiV1.Group("/chats")
		{
			chats.GET("", h.ListChats)
			chats.GET("/:id", h.GetChat)
		}
	}

	r.GET("/health", h.Health)
	return r
}
