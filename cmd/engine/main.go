package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	asynqmod "videoreach-engine/pkg/asynq"
	"videoreach-engine/pkg/config"
	"videoreach-engine/pkg/db"
	"videoreach-engine/pkg/gen"
	"videoreach-engine/pkg/logger"
	"videoreach-engine/pkg/minio"
	"videoreach-engine/pkg/redis"
	"videoreach-engine/services/campaign"
	"videoreach-engine/services/engine"
	"videoreach-engine/services/personalize"
	"videoreach-engine/services/ratelimit"
	"videoreach-engine/services/render"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		minio.Client,
		gen.Module,
		asynqmod.Client,
		asynqmod.Server,
		campaign.Module,
		ratelimit.Module,
		personalize.Module,
		render.Module,
		engine.Module,
		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
