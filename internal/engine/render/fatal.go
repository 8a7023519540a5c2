package render

import (
	"os"

	"github.com/sqweek/dialog"
	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/logger"
)

// FatalHandler receives errors that leave the backend unable to render.
// The default handler does not return.
type FatalHandler func(err error)

// DefaultFatal logs err, shows a native error box and exits with status 1.
func DefaultFatal(err error) {
	logger.Error("fatal rendering error", zap.Error(err))
	logger.Sync()
	dialog.Message("%s", err.Error()).Title("RenderLab").Error()
	os.Exit(1)
}
