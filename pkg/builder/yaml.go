package builder

import (
	"github.com/Egham-7/adaptive-tiers/internal/config"

	"github.com/gofiber/fiber/v2"
)

// FromYAML loads envFiles, then the YAML config at path, as the builder's
// starting point.
func FromYAML(path string, envFiles []string) (*Builder, error) {
	if len(envFiles) > 0 {
		config.LoadEnvFiles(envFiles)
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	return &Builder{
		cfg:         cfg,
		middlewares: []fiber.Handler{},
	}, nil
}
