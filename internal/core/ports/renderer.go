package ports

import "go.trai.ch/kiln/internal/core/domain"

// Renderer renders a plan as a Dockerfile for external builders.
//
//go:generate go run go.uber.org/mock/mockgen -source=renderer.go -destination=mocks/mock_renderer.go -package=mocks
type Renderer interface {
	Render(plan *domain.Plan) ([]byte, error)
}
