package config

import (
	"fmt"

	"github.com/matrix-portfolio/portfolio-api/logger"
	"gopkg.in/yaml.v3"
)

// Redacted returns a copy of cfg with every credential masked, suitable for
// printing or logging.
func (c Config) Redacted() Config {
	out := c
	out.Server.AdminToken = logger.MaskSecret(c.Server.AdminToken)
	out.Store.MongoURI = logger.MaskConnectionString(c.Store.MongoURI)
	out.Database.Password = logger.MaskSecret(c.Database.Password)
	out.Redis.Password = logger.MaskSecret(c.Redis.Password)
	out.Email.ResendAPIKey = logger.MaskSecret(c.Email.ResendAPIKey)
	out.Email.SMTPPassword = logger.MaskSecret(c.Email.SMTPPassword)
	return out
}

// RenderYAML renders the redacted configuration as YAML.
func (c Config) RenderYAML() ([]byte, error) {
	b, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return b, nil
}
