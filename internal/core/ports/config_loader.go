// Package ports defines the core interfaces for the application.
package ports

import "go.trai.ch/kiln/internal/core/domain"

// ConfigLoader defines the interface for loading the build recipe.
//
//go:generate go run go.uber.org/mock/mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads the recipe found from cwd, a build context directory or the
	// recipe file itself.
	Load(cwd string) (*domain.Recipe, error)
}
