package bootstrap

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	app "github.com/trackerlabs/migrate/internal/application/migration"
	"github.com/trackerlabs/migrate/internal/infrastructure/repository"
	httpecho "github.com/trackerlabs/migrate/internal/interfaces/http/echo"
)

func NewHTTPServer(db *gorm.DB) *echo.Echo {
	server := echo.New()
	server.HideBanner = true

	server.Use(middleware.Recover())
	server.Use(middleware.RequestID())
	server.Use(middleware.BodyLimit("1M"))

	jobRepo := repository.NewMigrationJobRepository(db)
	startMigration := app.NewStartMigration(jobRepo)
	getStatus := app.NewGetMigrationStatus(jobRepo)
	cancelMigration := app.NewCancelMigration(jobRepo)
	migrationHandler := httpecho.NewMigrationHandler(startMigration, getStatus, cancelMigration)

	httpecho.RegisterRoutes(server, migrationHandler)

	server.GET("/healthz", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	return server
}
