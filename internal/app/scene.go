package app

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/config"
	"github.com/Faultbox/renderlab/internal/engine/geometry"
	"github.com/Faultbox/renderlab/internal/engine/lighting"
	"github.com/Faultbox/renderlab/internal/engine/model"
	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/internal/engine/scene"
	"github.com/Faultbox/renderlab/internal/engine/technique"
	"github.com/Faultbox/renderlab/internal/engine/texture"
	"github.com/Faultbox/renderlab/internal/logger"
	"github.com/Faultbox/renderlab/pkg/math"
)

// Demo scene names accepted by config.SceneConfig.Demo.
const (
	DemoLights = "lights"
	DemoSun    = "sun"
)

// FloorTexture is the optional albedo map of the floor, looked up in the
// texture directories.
const FloorTexture = "floor.png"

// ErrUnknownDemo is returned by BuildScene for an unrecognized demo name.
var ErrUnknownDemo = errors.New("unknown demo scene")

// Scene is a demo scene attached to a world and a technique.
type Scene struct {
	View   *render.View
	Camera *scene.FirstPersonProcessor
	Lights []*render.Light
	// Moving is the light driven by a translation processor, if any.
	Moving *scene.TranslationProcessor
}

// SceneOptions configures BuildScene.
type SceneOptions struct {
	Demo             string
	Width, Height    int
	MoveSpeed        float32
	MouseSensitivity float32
	Input            scene.InputState
	// Textures is optional. Without it every material is untextured.
	Textures *texture.Loader
	// Models are loaded from ModelSource, with their texture maps.
	Models      []config.ModelConfig
	ModelSource model.Source
}

// pointLight is one fixed point light of the lights demo.
type pointLight struct {
	name     string
	position math.Vec3
	color    math.Vec3
}

var demoPointLights = []pointLight{
	{"Light 1", math.Vec3{X: -12, Y: -10, Z: 18}, math.Vec3{X: 1, Y: 0.3, Z: 0.3}},
	{"Light 2", math.Vec3{X: 12, Y: -10, Z: 18}, math.Vec3{X: 0.3, Y: 1, Z: 0.3}},
	{"Light 3", math.Vec3{X: 0, Y: -6, Z: 42}, math.Vec3{X: 0.3, Y: 0.3, Z: 1}},
	{"Light 4", math.Vec3{X: 0, Y: -8, Z: 28}, math.Vec3{X: 1, Y: 1, Z: 0.9}},
}

// BuildScene populates w with the demo named by opts.Demo, registers its
// screen view with tech and attaches tech as the world renderer.
func BuildScene(w *scene.World, tech *technique.Technique, opts SceneOptions) (*Scene, error) {
	if opts.Demo != DemoLights && opts.Demo != DemoSun {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDemo, opts.Demo)
	}

	view := render.NewView("Main View", render.ViewScreen)
	view.SetExtent(opts.Width, opts.Height)
	tech.AddView(view)

	s := &Scene{View: view}
	root := w.MustAddEntity("Scene", scene.NoEntity)

	cam := w.MustAddEntity("Camera", root)
	s.Camera = scene.NewFirstPersonProcessor(view, opts.Input, opts.MoveSpeed, opts.MouseSensitivity)
	w.AddProcessor(cam, s.Camera)

	addGeometry(w, root, opts.Textures)
	if err := addModels(w, root, opts.Models, opts.ModelSource); err != nil {
		return nil, err
	}

	switch opts.Demo {
	case DemoLights:
		for i, pl := range demoPointLights {
			id := w.MustAddEntity(pl.name, root)
			w.SetTransform(id, math.TranslateVec3(pl.position))
			l := w.AddLightComponent(id, pl.name, render.LightPoint, true)
			l.Diffuse = pl.color
			s.Lights = append(s.Lights, l)
			if i == len(demoPointLights)-1 {
				s.Moving = scene.NewTranslationProcessor(w, id, math.Vec3{X: 1}, -110, 110, 0.3)
				w.AddProcessor(id, s.Moving)
			}
		}
	case DemoSun:
		sun := w.MustAddEntity("Sun", root)
		l := w.AddLightComponent(sun, "Sun", render.LightDirectional, true)
		l.Direction = lighting.SunDirection(30, 50)
		l.Diffuse = math.Vec3{X: 1, Y: 0.95, Z: 0.85}
		s.Lights = append(s.Lights, l)

		fill := w.MustAddEntity("Fill", root)
		w.SetTransform(fill, math.Translate(0, -8, 28))
		l = w.AddLightComponent(fill, "Fill", render.LightPoint, false)
		l.Diffuse = math.Vec3{X: 0.2, Y: 0.25, Z: 0.4}
		s.Lights = append(s.Lights, l)
	}

	w.SetRenderer(tech)
	return s, nil
}

func addGeometry(w *scene.World, root scene.EntityID, textures *texture.Loader) {
	floorMat := litMaterial("Floor", math.Vec4{0.6, 0.6, 0.6, 1}, 0, 0.9)
	if textures != nil {
		if tex, err := textures.Load(FloorTexture); err == nil {
			floorMat.AlbedoTexture = tex
		} else {
			logger.Debug("floor texture not loaded", zap.Error(err))
		}
	}
	floor := w.MustAddEntity("Floor", root)
	w.SetTransform(floor, math.Translate(0, -20, 30))
	w.SetCastShadow(floor, false)
	w.AddRenderComponent(floor, render.NewRenderComponent("Floor",
		geometry.Plane("Floor", 120, 120, 12, floorMat)))

	torus := w.MustAddEntity("Torus", root)
	w.SetTransform(torus, math.Translate(0, -15, 28))
	w.AddRenderComponent(torus, render.NewRenderComponent("Torus",
		geometry.Torus("Torus", 3, 1, 48, 24, litMaterial("Gold", math.Vec4{1, 0.77, 0.34, 1}, 1, 0.3))))
	w.AddProcessor(torus, scene.NewRotationProcessor(w, torus, math.Vec3{X: 1, Y: 1}.Normalize(), 0.1))

	boxMat := litMaterial("Box", math.Vec4{0.8, 0.2, 0.2, 1}, 0, 0.6)
	for i, x := range []float32{-9, 9} {
		id := w.MustAddEntity(fmt.Sprintf("Box %d", i+1), root)
		w.SetTransform(id, math.Translate(x, -18, 32))
		w.AddRenderComponent(id, render.NewRenderComponent("Box",
			geometry.Box(fmt.Sprintf("Box %d", i+1), math.Vec3{X: 4, Y: 4, Z: 4}, boxMat)))
	}

	sphere := w.MustAddEntity("Sphere", root)
	w.SetTransform(sphere, math.Translate(0, -17.5, 38))
	w.AddRenderComponent(sphere, render.NewRenderComponent("Sphere",
		geometry.Sphere("Sphere", 2.5, 24, 32, litMaterial("Chrome", math.Vec4{0.9, 0.9, 0.95, 1}, 1, 0.15))))
}

// addModels places every configured OBJ model under root. Model textures
// are resolved next to the model file.
func addModels(w *scene.World, root scene.EntityID, models []config.ModelConfig, src model.Source) error {
	if len(models) == 0 {
		return nil
	}
	if src == nil {
		return fmt.Errorf("placing %d models: no model source", len(models))
	}
	textures := texture.NewLoader(src)
	for _, mc := range models {
		m, err := model.Load(src, textures, mc.File)
		if err != nil {
			return err
		}
		scale := mc.Scale
		if scale == 0 {
			scale = 1
		}
		id := w.MustAddEntity(mc.File, root)
		pos := math.Vec3{X: mc.Position[0], Y: mc.Position[1], Z: mc.Position[2]}
		w.SetTransform(id, math.TranslateVec3(pos).Mul(math.Scale(scale, scale, scale)))
		w.SetCastShadow(id, !mc.NoShadow)
		w.AddRenderComponent(id, render.NewRenderComponent(mc.File, m.Meshes...))
		logger.Debug("model placed",
			zap.String("file", mc.File),
			zap.Int("meshes", len(m.Meshes)),
			zap.Int("warnings", len(m.Warnings)))
	}
	return nil
}

func litMaterial(name string, albedo math.Vec4, metallic, roughness float32) *render.Material {
	m := render.NewMaterial(name, render.TechniqueDeferredLit)
	m.Albedo = albedo
	m.Metallic = metallic
	m.Roughness = roughness
	return m
}
