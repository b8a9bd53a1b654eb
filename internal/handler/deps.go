package handler

import (
	"metaverse/internal/app/relay"
	"metaverse/internal/configs"
)

type AppDeps struct {
	Manager *relay.Manager
	Config  *configs.AppConfig
}
