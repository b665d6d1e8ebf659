package handler

import (
	"aquahub/internal/app/chat"
	"aquahub/internal/configs"
)

// AppDeps bundles the dependencies handlers need.
type AppDeps struct {
	Hub    *chat.Hub
	Config *configs.AppConfig
}
