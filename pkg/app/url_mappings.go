package app

import (
	"net/http"

	"github.com/osvaldoandrade/suiterun/internal/controllers"
	"github.com/osvaldoandrade/suiterun/internal/middleware"

	"github.com/gin-gonic/gin"
)

func SetupMappings(app *Application) {
	app.Engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	suites := app.Engine.Group("/suites", middleware.APITokenMiddleware(app.Config.APIToken))
	{
		suites.POST("/execute", controllers.NewSubmitExecutionController(app.Script).Handle)
		suites.GET("/executions", controllers.NewGetExecutionController(app.Script).Handle)
	}
}
