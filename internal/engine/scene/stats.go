package scene

import (
	"time"

	"go.uber.org/zap"
)

// frameStats accumulates timings over a one second window.
type frameStats struct {
	windowStart time.Time
	frames      int
	process     time.Duration
	render      time.Duration
	gpuGeometry float64 // ms
	gpuLighting float64 // ms
}

func (s *frameStats) add(render time.Duration, gpuGeometry, gpuLighting float32) {
	s.frames++
	s.render += render
	s.gpuGeometry += float64(gpuGeometry)
	s.gpuLighting += float64(gpuLighting)
}

func (s *frameStats) log(l *zap.Logger) {
	if s.frames == 0 {
		return
	}
	n := float64(s.frames)
	l.Debug("frame timing",
		zap.Int("fps", s.frames),
		zap.Float64("processMs", s.process.Seconds()*1000/n),
		zap.Float64("renderMs", s.render.Seconds()*1000/n),
		zap.Float64("gpuGeometryMs", s.gpuGeometry/n),
		zap.Float64("gpuLightingMs", s.gpuLighting/n),
	)
}

func (s *frameStats) reset(now time.Time) {
	*s = frameStats{windowStart: now}
}

// FPS returns the frame count of the last complete window, or the running
// count while the first window is open.
func (w *World) FPS() int {
	return w.stats.frames
}
