package texture

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/internal/logger"
)

// Source loads raw files by name.
type Source interface {
	Load(name string) ([]byte, error)
}

// Loader decodes textures once per name.
type Loader struct {
	src   Source
	cache map[string]*render.Texture
}

// NewLoader creates a loader reading from src.
func NewLoader(src Source) *Loader {
	return &Loader{src: src, cache: make(map[string]*render.Texture)}
}

// Load returns the texture for name, decoding it on first use.
func (l *Loader) Load(name string) (*render.Texture, error) {
	if tex, ok := l.cache[name]; ok {
		return tex, nil
	}
	data, err := l.src.Load(name)
	if err != nil {
		return nil, fmt.Errorf("loading texture %s: %w", name, err)
	}
	tex, err := Decode(name, data)
	if err != nil {
		return nil, err
	}
	l.cache[name] = tex
	logger.Debug("texture decoded", zap.String("name", name), zap.Int("width", tex.Width), zap.Int("height", tex.Height))
	return tex, nil
}

// Len returns the number of cached textures.
func (l *Loader) Len() int {
	return len(l.cache)
}
