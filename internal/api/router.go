package api

import (
	"github.com/gin-gonic/gin"
	"github.com/gurubase/gurubase-go/internal/api/handlers"
	"github.com/gurubase/gurubase-go/internal/middleware"
	"github.com/gurubase/gurubase-go/internal/repository"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Ask         *handlers.AskHandler
	Binge       *handlers.BingeHandler
	Question    *handlers.QuestionHandler
	Integration *handlers.IntegrationHandler
	Webhook     *handlers.WebhookHandler
	APIKey      *handlers.APIKeyHandler
	Health      *handlers.HealthHandler
}

// NewRouter wires middleware and routes. Three surfaces share the
// services: the UI (user auth), the public API (API keys) and the vendor
// webhooks (signature/ack semantics handled per vendor).
func NewRouter(h Handlers, repoManager *repository.RepositoryManager, rateLimit int) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.NewRateLimiter(rateLimit).RateLimit())

	router.GET("/health", h.Health.HandleHealth)

	// Vendor webhooks. No user auth; each dispatcher validates its own way.
	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/slack/events/", h.Webhook.HandleSlackEvents)
		webhooks.POST("/github/", h.Webhook.HandleGithubWebhook)
	}

	// Public API surface, API-key authenticated.
	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.APIKeyAuth(repoManager.APIKey))
	{
		apiV1.POST("/:guruType/answer/", h.Ask.HandleAPIAnswer)
	}

	// UI surface. User identity comes from the fronting proxy and is
	// optional; ownership-sensitive handlers enforce it themselves.
	ui := router.Group("/")
	ui.Use(middleware.UserAuth(repoManager.User, false))
	{
		guru := ui.Group("/g/:guruType")
		{
			guru.POST("/summary/", h.Ask.HandleSummary)
			guru.POST("/answer/", h.Ask.HandleUIAnswer)
			guru.GET("/question/:slug", h.Question.HandleQuestionDetail)
			guru.GET("/default-questions/", h.Question.HandleDefaultQuestions)
			guru.POST("/binge/create/", h.Binge.HandleCreateBinge)
			guru.GET("/binge/:bingeID/graph/", h.Binge.HandleBingeGraph)
			guru.GET("/integrations/", h.Integration.HandleList)
		}

		ui.GET("/binge-history/", h.Binge.HandleBingeHistory)

		ui.POST("/api-keys/", h.APIKey.HandleCreate)
		ui.GET("/api-keys/", h.APIKey.HandleList)
		ui.DELETE("/api-keys/:key", h.APIKey.HandleDelete)

		integrations := ui.Group("/integrations/:type/:guruType")
		{
			integrations.POST("/create/", h.Integration.HandleCreate)
			integrations.GET("/", h.Integration.HandleGet)
			integrations.DELETE("/", h.Integration.HandleDelete)
			integrations.GET("/channels/", h.Integration.HandleListChannels)
			integrations.POST("/channels/", h.Integration.HandleSaveChannels)
			integrations.POST("/test-message/", h.Integration.HandleSendTestMessage)
			integrations.POST("/issues/", h.Integration.HandleListIssues)
		}
	}

	// Widget surface, anonymous.
	widget := router.Group("/widget")
	{
		widget.POST("/:guruType/ask/", h.Ask.HandleWidgetAsk)
		widget.POST("/:guruType/binge/create/", h.Binge.HandleWidgetCreateBinge)
	}

	return router
}
