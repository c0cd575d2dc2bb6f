package handler

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// ErrUnsupportedPlatform indicates no handler was registered for a
// platform. Absence is a first-class condition, not a silent stub.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// Registry maps platform names to their handlers. It is populated once at
// startup, only for platforms whose configuration is present.
type Registry struct {
	handlers map[string]Handler
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

func (r *Registry) Register(h Handler) error {
	platform := h.Platform()
	if _, exists := r.handlers[platform]; exists {
		return fmt.Errorf("handler for platform %s already registered", platform)
	}

	r.handlers[platform] = h
	r.logger.Info("Platform handler registered", zap.String("platform", platform))
	return nil
}

func (r *Registry) Get(platform string) (Handler, error) {
	h, exists := r.handlers[platform]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}
	return h, nil
}

func (r *Registry) Has(platform string) bool {
	_, exists := r.handlers[platform]
	return exists
}

// Platforms lists registered platform names in stable order.
func (r *Registry) Platforms() []string {
	platforms := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		platforms = append(platforms, name)
	}
	sort.Strings(platforms)
	return platforms
}
