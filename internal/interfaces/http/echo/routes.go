package echo

import e "github.com/labstack/echo/v4"

func RegisterRoutes(server *e.Echo, migrationHandler *MigrationHandler) {
	server.POST("/api/v1/migrations", migrationHandler.StartMigration)
	server.GET("/api/v1/migrations/:id", migrationHandler.GetMigrationStatus)
	server.POST("/api/v1/migrations/:id/cancel", migrationHandler.CancelMigration)
}
