package archive

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// loggerFrom returns the job logger attached to ctx, or the global logger.
func loggerFrom(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		return &log.Logger
	}
	return l
}
