package rest

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/tokengate/tokengate/config"
	"github.com/tokengate/tokengate/infrastructure/valkey"
	"github.com/tokengate/tokengate/pkg/utils"
)

type Health struct {
	DB     *gorm.DB
	Valkey *valkey.Client // nil when disabled
}

func InitRestHealth(app fiber.Router, db *gorm.DB, vk *valkey.Client) Health {
	rest := Health{DB: db, Valkey: vk}
	app.Get("/health", rest.Check)

	return rest
}

func (handler *Health) Check(c *fiber.Ctx) error {
	status := 200
	checks := map[string]string{
		"database": "ok",
	}

	if sqlDB, err := handler.DB.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
		checks["database"] = "unreachable"
		status = 503
	}

	if handler.Valkey != nil {
		checks["valkey"] = "ok"
		if !handler.Valkey.IsConnected() {
			checks["valkey"] = "unreachable"
			status = 503
		}
	}

	return c.Status(status).JSON(utils.ResponseData{
		Status:  status,
		Code:    "HEALTH",
		Message: "version " + config.AppVersion,
		Results: checks,
	})
}
