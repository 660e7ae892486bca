package tools

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/tierfs/tierfs/internal/auth"
	"github.com/tierfs/tierfs/internal/config"
)

// Service is the protocol-facing wrapper around a Registry: builtins
// registered, auth middleware installed, ready for the HTTP layer.
type Service struct {
	registry *Registry
}

// NewService builds the default tool service over a storage facade.
func NewService(storage Storage, cfg *config.Configuration, log logrus.FieldLogger) (*Service, error) {
	registry := NewRegistry()
	registry.Use(AuthMiddleware(AuthMiddlewareConfig{
		AllowAnonymousRead: cfg.Auth.AllowAnonymousRead,
		OnFailure: func(tool, code string) {
			log.WithField("tool", tool).WithField("code", code).Warn("tool invocation denied")
		},
	}))
	if err := RegisterBuiltins(registry, storage, cfg.Sandbox); err != nil {
		return nil, err
	}
	return &Service{registry: registry}, nil
}

// Registry exposes the underlying registry for custom tool registration.
func (s *Service) Registry() *Registry { return s.registry }

// Invoke satisfies the HTTP layer's ToolService.
func (s *Service) Invoke(ctx context.Context, name string, params map[string]interface{}, info *auth.Info) (interface{}, error) {
	return s.registry.Invoke(ctx, name, params, info)
}

// Schemas satisfies the HTTP layer's ToolService.
func (s *Service) Schemas() []map[string]interface{} {
	return s.registry.Schemas()
}
