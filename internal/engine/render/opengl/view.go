package opengl

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/engine/render"
)

type viewData struct {
	view    *render.View
	slots   *render.Ring[uint32]
	current uint32 // last acquired slot

	gbuffer *gbuffer   // on-screen only
	shadow  *shadowMap // shadow views only

	width, height int32

	recording  bool
	subpass    int
	objectData *bufferData
	bound      *pipeline
	material   *materialData
}

func (vd *viewData) screen() bool { return vd.view.Type == render.ViewScreen }

// slot returns the ring slot a call with frameIndex refers to. Off-screen
// views render with the on-screen frame index but recycle their own slot.
func (vd *viewData) slot(frameIndex uint32) uint32 {
	if vd.screen() {
		return frameIndex
	}
	return vd.current
}

func (vd *viewData) destroy() {
	if vd.gbuffer != nil {
		vd.gbuffer.destroy()
		vd.gbuffer = nil
	}
	if vd.shadow != nil {
		vd.shadow.destroy()
		vd.shadow = nil
	}
}

func (b *Backend) viewData(view *render.View) (*viewData, error) {
	if view == nil {
		return nil, fmt.Errorf("nil view: %w", render.ErrUnknownView)
	}
	vd, ok := b.views.Get(view.Handle())
	if !ok {
		return nil, fmt.Errorf("view %s: %w", view.Name, render.ErrNotBuilt)
	}
	return vd, nil
}

// BuildView creates the G-buffer of on-screen views and the depth map of
// shadow views, plus the frame slot ring.
func (b *Backend) BuildView(view *render.View, numFrames int) error {
	if view.Type != render.ViewScreen && !view.Type.IsShadow() {
		return fmt.Errorf("%w: %s is a %s view", render.ErrUnknownView, view.Name, view.Type)
	}
	if !view.NeedsBuild() {
		return nil
	}
	if old, ok := b.views.Get(view.Handle()); ok {
		old.destroy()
	}

	slots := make([]uint32, numFrames)
	for i := range slots {
		slots[i] = uint32(i)
	}
	vd := &viewData{view: view, slots: render.NewRing(slots...)}
	w, h := view.Extent()
	if view.Type == render.ViewScreen {
		if dw, dh := b.opts.Window.DrawableSize(); dw > 0 && dh > 0 {
			w, h = dw, dh
		}
		g, err := newGBuffer(int32(w), int32(h))
		if err != nil {
			return b.fail(fmt.Errorf("view %s: %w", view.Name, err))
		}
		vd.gbuffer = g
		view.SetExtent(w, h)
	} else {
		sm, err := newShadowMap(int32(w), int32(h), view.Type == render.ViewShadowCube)
		if err != nil {
			return b.fail(fmt.Errorf("view %s: %w", view.Name, err))
		}
		vd.shadow = sm
	}
	vd.width, vd.height = int32(w), int32(h)

	if hd := view.Handle(); hd == render.NoHandle || !b.views.Set(hd, vd) {
		view.SetHandle(b.views.Insert(vd))
	}
	view.SetDirty(false)
	b.log.Debug("view built",
		zap.String("view", view.Name),
		zap.Stringer("type", view.Type),
		zap.Int("width", w),
		zap.Int("height", h))
	return nil
}

// Resize reallocates the G-buffer of the on-screen view when its extent
// changes.
func (b *Backend) Resize(view *render.View, width, height int) error {
	vd, err := b.viewData(view)
	if err != nil {
		return err
	}
	if !vd.screen() {
		return fmt.Errorf("%w: resize of %s view %s", render.ErrUnknownView, view.Type, view.Name)
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("resizing %s: invalid extent %dx%d", view.Name, width, height)
	}
	if vd.width == int32(width) && vd.height == int32(height) {
		return nil
	}
	vd.gbuffer.resize(int32(width), int32(height))
	vd.width, vd.height = int32(width), int32(height)
	view.SetExtent(width, height)
	b.log.Info("view resized", zap.String("view", view.Name), zap.Int("width", width), zap.Int("height", height))
	return nil
}
