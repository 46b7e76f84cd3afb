package mongoutil

import (
	"context"

	"PPGateway/tools/errs"
)

// Check connects once and pings, used by the startup probe.
func Check(ctx context.Context, config *Config) error {
	if err := config.ValidateAndSetDefaults(); err != nil {
		return err
	}
	opts, err := applyConfigToOptions(config)
	if err != nil {
		return err
	}
	cli, err := connectMongo(ctx, opts)
	if err != nil {
		return errs.WrapMsg(err, "MongoDB ping failed", "database", config.Database, "maxPoolSize", config.MaxPoolSize)
	}
	return cli.Disconnect(ctx)
}

// ValidateAndSetDefaults validates the configuration and sets default values.
func (c *Config) ValidateAndSetDefaults() error {
	if c.Uri == "" && len(c.Address) == 0 {
		return errs.ErrArgs.WrapMsg("either Uri or Address must be provided")
	}
	if c.Database == "" {
		return errs.ErrArgs.WrapMsg("database is required")
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = defaultMaxRetry
	}
	if c.Uri == "" {
		// authSource 缺省时用库名
		if c.AuthSource == "" {
			c.Uri = buildMongoURI(c, c.Database)
		} else {
			c.Uri = buildMongoURI(c, c.AuthSource)
		}
	}
	return nil
}
