package router

import (
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/moodfox/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, sessionSecret, uploadDir, uploadURL string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// 配置会话中间件
	secret := strings.TrimSpace(sessionSecret)
	if secret == "" {
		secret = "moodfox-secret"
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 7 * 24 * 3600, HttpOnly: true})
	r.Use(sessions.Sessions("moodfox_session", store))

	// 明信片图片
	if uploadDir != "" && uploadURL != "" {
		r.Static(uploadURL, uploadDir)
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})
	r.GET("/healthz", api.HealthCheck)

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/login", api.Login)
		apiGroup.POST("/logout", api.Logout)

		// 需要登录的接口
		auth := apiGroup.Group("")
		auth.Use(handler.AuthRequired())
		{
			auth.GET("/me", api.Me)

			auth.GET("/diaries", api.ListDiaries)
			auth.POST("/diaries", api.CreateDiary)
			auth.GET("/diaries/:id", api.GetDiary)
			auth.PUT("/diaries/:id", api.UpdateDiary)
			auth.DELETE("/diaries/:id", api.DeleteDiary)
			auth.POST("/diaries/:id/analyze", api.AnalyzeDiary)

			auth.GET("/game/state", api.GetGameState)

			adventures := auth.Group("/adventures")
			{
				adventures.GET("/items", api.ListItems)
				adventures.GET("/session/:diaryID", api.GetOrCreateAdventure)
				adventures.POST("/session/:diaryID", api.GetOrCreateAdventure)
				adventures.GET("/:id", api.GetAdventure)
				adventures.POST("/:id/start", api.StartAdventure)
				adventures.POST("/:id/submit", api.SubmitAdventureAnswer)
				adventures.POST("/:id/complete", api.CompleteAdventure)
				adventures.POST("/:id/retry", api.RetryAdventure)
				adventures.POST("/:id/skip", api.SkipAdventure)
			}

			postcards := auth.Group("/postcards")
			{
				postcards.GET("", api.ListPostcards)
				postcards.GET("/latest", api.LatestPostcard)
				postcards.GET("/unread-count", api.UnreadPostcardCount)
				postcards.GET("/by-diary/:diaryID", api.GetPostcardByDiary)
				postcards.GET("/:id", api.GetPostcard)
				postcards.POST("/:id/read", api.MarkPostcardRead)
				postcards.POST("/:id/regenerate", api.RegeneratePostcard)
			}

			settings := auth.Group("/settings")
			{
				settings.GET("/ai", api.GetSystemSettings)
				settings.PUT("/ai", api.UpdateSystemSettings)
				settings.POST("/ai/test", api.TestAIConnection)
			}
		}
	}

	return r
}
