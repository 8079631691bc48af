package transport

import (
	"context"
	"fmt"

	"github.com/kandev/oauthbridge/internal/common/config"
	"github.com/kandev/oauthbridge/internal/common/logger"
	"github.com/kandev/oauthbridge/internal/wsframe"
)

// Open dials the parent with the codec named by codecName.
func Open(ctx context.Context, codecName string, opts Options, log *logger.Logger) (wsframe.Codec, error) {
	switch codecName {
	case "", config.CodecMinimal:
		return Dial(ctx, opts, log)
	case config.CodecConformant:
		return DialConformant(ctx, opts, log)
	default:
		return nil, fmt.Errorf("unknown codec %q", codecName)
	}
}
