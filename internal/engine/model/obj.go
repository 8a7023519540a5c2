// Package model decodes Wavefront OBJ files and their MTL material
// libraries into meshes the technique can draw. Faces are fan-triangulated
// and split into one mesh per object and material.
package model

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/engine/geometry"
	"github.com/Faultbox/renderlab/internal/engine/render"
	"github.com/Faultbox/renderlab/internal/engine/texture"
	"github.com/Faultbox/renderlab/internal/logger"
	"github.com/Faultbox/renderlab/pkg/math"
)

// ErrInvalidOBJ is returned for OBJ or MTL lines that cannot be parsed.
var ErrInvalidOBJ = errors.New("invalid obj")

// DefaultMaterialName names the material of faces without usemtl or whose
// material is missing from the library.
const DefaultMaterialName = "default"

// Source loads raw files by name. Names use forward slashes.
type Source interface {
	Load(name string) ([]byte, error)
}

// Model is a decoded OBJ file.
type Model struct {
	Name      string
	Meshes    []*render.Mesh
	Materials map[string]*render.Material
	// Warnings lists unsupported statements and unresolved references.
	Warnings []string
}

// Load decodes the OBJ file name from src together with its material
// libraries. Material libraries and texture maps are resolved relative to
// the OBJ file. A nil textures loader skips every texture map.
func Load(src Source, textures *texture.Loader, name string) (*Model, error) {
	data, err := src.Load(name)
	if err != nil {
		return nil, fmt.Errorf("loading model %s: %w", name, err)
	}
	dec := newDecoder(name)
	if err := dec.parse(bytes.NewReader(data), dec.parseObjLine); err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}

	dir := path.Dir(name)
	for _, lib := range dec.matlibs {
		data, err := src.Load(path.Join(dir, lib))
		if err != nil {
			dec.warn("mtl", fmt.Sprintf("material library %s: %v", lib, err))
			continue
		}
		dec.matCurrent = nil
		if err := dec.parse(bytes.NewReader(data), dec.parseMtlLine); err != nil {
			return nil, fmt.Errorf("model %s: %s: %w", name, lib, err)
		}
	}

	m, err := dec.build(textures, dir)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", name, err)
	}
	for _, w := range m.Warnings {
		logger.Debug("obj warning", zap.String("model", name), zap.String("warning", w))
	}
	return m, nil
}

// object is one o or g block.
type object struct {
	name  string
	faces []face
}

// corner indexes one face vertex; -1 marks an absent uv or normal.
type corner struct {
	v, vt, vn int
}

type face struct {
	corners  []corner
	material string
}

// mtl is one newmtl block.
type mtl struct {
	name      string
	defined   bool
	diffuse   math.Vec3
	emissive  math.Vec3
	opacity   float32
	shininess float32
	// PBR extension values, negative when absent.
	roughness float32
	metallic  float32

	mapKd, mapKe, mapBump string
	repeat, offset        math.Vec2
}

func newMtl(name string) *mtl {
	return &mtl{
		name:      name,
		diffuse:   math.Vec3{X: 0.63, Y: 0.63, Z: 0.63},
		opacity:   1,
		roughness: -1,
		metallic:  -1,
		repeat:    math.Vec2{X: 1, Y: 1},
	}
}

type decoder struct {
	name      string
	line      int
	objects   []object
	matlibs   []string
	materials map[string]*mtl
	positions []math.Vec3
	normals   []math.Vec3
	uvs       []math.Vec2
	warnings  []string

	objCurrent *object
	matCurrent *mtl
}

func newDecoder(name string) *decoder {
	return &decoder{name: name, materials: make(map[string]*mtl)}
}

// parse feeds every trimmed line of r to parseLine.
func (dec *decoder) parse(r io.Reader, parseLine func(fields []string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	dec.line = 0
	for sc.Scan() {
		dec.line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if err := parseLine(fields); err != nil {
			return err
		}
	}
	return sc.Err()
}

func (dec *decoder) parseObjLine(fields []string) error {
	args := fields[1:]
	switch fields[0] {
	case "mtllib":
		if len(args) < 1 {
			return dec.formatError("mtllib with no fields")
		}
		dec.matlibs = append(dec.matlibs, args...)
	case "o", "g":
		name := fmt.Sprintf("unnamed%d", dec.line)
		if len(args) > 0 {
			name = args[0]
		}
		dec.startObject(name)
	case "v":
		v, err := dec.floats(args, 3)
		if err != nil {
			return err
		}
		dec.positions = append(dec.positions, math.Vec3{X: v[0], Y: v[1], Z: v[2]})
	case "vn":
		v, err := dec.floats(args, 3)
		if err != nil {
			return err
		}
		dec.normals = append(dec.normals, math.Vec3{X: v[0], Y: v[1], Z: v[2]})
	case "vt":
		v, err := dec.floats(args, 2)
		if err != nil {
			return err
		}
		dec.uvs = append(dec.uvs, math.Vec2{X: v[0], Y: v[1]})
	case "f":
		return dec.parseFace(args)
	case "usemtl":
		if len(args) < 1 {
			return dec.formatError("usemtl with no fields")
		}
		if dec.objCurrent == nil {
			dec.startObject(fmt.Sprintf("unnamed%d", dec.line))
		}
		dec.matCurrent = dec.material(args[0])
	case "s":
	default:
		dec.warn("obj", "field not supported: "+fields[0])
	}
	return nil
}

func (dec *decoder) startObject(name string) {
	dec.objects = append(dec.objects, object{name: name})
	dec.objCurrent = &dec.objects[len(dec.objects)-1]
}

// material returns the named material, creating it on first reference.
func (dec *decoder) material(name string) *mtl {
	m, ok := dec.materials[name]
	if !ok {
		m = newMtl(name)
		dec.materials[name] = m
	}
	return m
}

// parseFace parses f v1[/vt1][/vn1] v2[/vt2][/vn2] v3[/vt3][/vn3] ...
func (dec *decoder) parseFace(fields []string) error {
	if dec.objCurrent == nil {
		dec.startObject(fmt.Sprintf("unnamed%d", dec.line))
	}
	if len(fields) < 3 {
		return dec.formatError("face with less than 3 vertices")
	}
	f := face{corners: make([]corner, len(fields)), material: DefaultMaterialName}
	if dec.matCurrent != nil {
		f.material = dec.matCurrent.name
	}
	for i, field := range fields {
		parts := strings.Split(field, "/")
		v, err := dec.index(parts[0], len(dec.positions))
		if err != nil {
			return err
		}
		c := corner{v: v, vt: -1, vn: -1}
		if len(parts) > 1 && parts[1] != "" {
			if c.vt, err = dec.index(parts[1], len(dec.uvs)); err != nil {
				return err
			}
		}
		if len(parts) > 2 && parts[2] != "" {
			if c.vn, err = dec.index(parts[2], len(dec.normals)); err != nil {
				return err
			}
		}
		f.corners[i] = c
	}
	dec.objCurrent.faces = append(dec.objCurrent.faces, f)
	return nil
}

// index resolves a 1-based or negative relative OBJ index against the
// count of elements parsed so far.
func (dec *decoder) index(s string, count int) (int, error) {
	val, err := strconv.Atoi(s)
	if err != nil {
		return 0, dec.formatError("bad index " + strconv.Quote(s))
	}
	switch {
	case val > 0:
		val--
	case val < 0:
		val += count
	default:
		return 0, dec.formatError("index 0")
	}
	if val < 0 || val >= count {
		return 0, dec.formatError(fmt.Sprintf("index %s out of range", s))
	}
	return val, nil
}

func (dec *decoder) parseMtlLine(fields []string) error {
	args := fields[1:]
	if fields[0] == "newmtl" {
		if len(args) < 1 {
			return dec.formatError("newmtl with no fields")
		}
		dec.matCurrent = dec.material(args[0])
		dec.matCurrent.defined = true
		return nil
	}
	if dec.matCurrent == nil {
		return dec.formatError(fields[0] + " before newmtl")
	}
	m := dec.matCurrent

	switch fields[0] {
	case "Kd", "Ke":
		v, err := dec.floats(args, 3)
		if err != nil {
			return err
		}
		c := math.Vec3{X: v[0], Y: v[1], Z: v[2]}
		if fields[0] == "Kd" {
			m.diffuse = c
		} else {
			m.emissive = c
		}
	case "d", "Tr", "Ns", "Pr", "Pm":
		v, err := dec.floats(args, 1)
		if err != nil {
			return err
		}
		switch fields[0] {
		case "d":
			m.opacity = v[0]
		case "Tr":
			m.opacity = 1 - v[0]
		case "Ns":
			m.shininess = v[0]
		case "Pr":
			m.roughness = v[0]
		case "Pm":
			m.metallic = v[0]
		}
	case "map_Kd":
		return dec.parseMap(args, &m.mapKd, m)
	case "map_Ke":
		return dec.parseMap(args, &m.mapKe, m)
	case "map_Bump", "map_bump", "bump", "norm":
		return dec.parseMap(args, &m.mapBump, m)
	case "Ka", "Ks", "Ni", "illum":
	default:
		dec.warn("mtl", "field not supported: "+fields[0])
	}
	return nil
}

// parseMap parses map_xx [-s u [v]] [-o u [v]] [-bm mult] <file>. Scale
// and offset are shared by every map of the material.
func (dec *decoder) parseMap(args []string, file *string, m *mtl) error {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") {
			*file = strings.Join(args[i:], " ")
			return nil
		}
		switch a {
		case "-blendu", "-blendv", "-cc", "-clamp", "-imfchan", "-type":
			i++
			continue
		}
		vals := dec.optionFloats(args[i+1:])
		switch a {
		case "-s", "-o":
			if len(vals) == 0 {
				return dec.formatError(a + " with no values")
			}
			v := math.Vec2{X: vals[0], Y: vals[0]}
			if len(vals) > 1 {
				v.Y = vals[1]
			}
			if a == "-s" {
				m.repeat = v
			} else {
				m.offset = v
			}
		}
		i += len(vals)
	}
	return dec.formatError("texture map with no file")
}

// optionFloats returns the leading numeric arguments, at most three.
func (dec *decoder) optionFloats(args []string) []float32 {
	var out []float32
	for _, a := range args {
		if len(out) == 3 {
			break
		}
		v, err := strconv.ParseFloat(a, 32)
		if err != nil {
			break
		}
		out = append(out, float32(v))
	}
	return out
}

func (dec *decoder) floats(args []string, n int) ([]float32, error) {
	if len(args) < n {
		return nil, dec.formatError(fmt.Sprintf("expected %d values, got %d", n, len(args)))
	}
	out := make([]float32, n)
	for i := range out {
		v, err := strconv.ParseFloat(args[i], 32)
		if err != nil {
			return nil, dec.formatError("bad number " + strconv.Quote(args[i]))
		}
		out[i] = float32(v)
	}
	return out, nil
}

func (dec *decoder) formatError(msg string) error {
	return fmt.Errorf("%w: %s in line %d", ErrInvalidOBJ, msg, dec.line)
}

func (dec *decoder) warn(kind, msg string) {
	dec.warnings = append(dec.warnings, fmt.Sprintf("%s(%d): %s", kind, dec.line, msg))
}

// build turns the parsed objects into meshes, one per object and run of
// faces sharing a material.
func (dec *decoder) build(textures *texture.Loader, dir string) (*Model, error) {
	m := &Model{
		Name:      dec.name,
		Materials: make(map[string]*render.Material),
	}
	for oi := range dec.objects {
		ob := &dec.objects[oi]
		start := 0
		for i := 1; i <= len(ob.faces); i++ {
			if i < len(ob.faces) && ob.faces[i].material == ob.faces[start].material {
				continue
			}
			mat := m.Materials[ob.faces[start].material]
			if mat == nil {
				mat = dec.renderMaterial(ob.faces[start].material, textures, dir)
				m.Materials[mat.Name] = mat
			}
			mesh, err := dec.mesh(fmt.Sprintf("%s_%d", ob.name, len(m.Meshes)), ob.faces[start:i], mat)
			if err != nil {
				return nil, err
			}
			m.Meshes = append(m.Meshes, mesh)
			start = i
		}
	}
	m.Warnings = dec.warnings
	return m, nil
}

// vertexKey identifies a deduplicated output vertex. Corners without a
// normal get the flat normal of their face, so face is part of the key.
type vertexKey struct {
	corner
	face int
}

func (dec *decoder) mesh(name string, faces []face, mat *render.Material) (*render.Mesh, error) {
	hasUV := false
	for _, f := range faces {
		for _, c := range f.corners {
			hasUV = hasUV || c.vt >= 0
		}
	}
	src := dec.materials[mat.Name]

	mesh := render.NewMesh(name)
	mesh.Material = mat
	seen := make(map[vertexKey]uint32)
	for fi, f := range faces {
		p0 := dec.positions[f.corners[0].v]
		flat := dec.positions[f.corners[1].v].Sub(p0).Cross(dec.positions[f.corners[2].v].Sub(p0)).Normalize()

		ids := make([]uint32, len(f.corners))
		for ci, c := range f.corners {
			key := vertexKey{corner: c}
			if c.vn < 0 {
				key.face = fi
			}
			id, ok := seen[key]
			if !ok {
				id = uint32(mesh.VertexCount())
				seen[key] = id
				p := dec.positions[c.v]
				n := flat
				if c.vn >= 0 {
					n = dec.normals[c.vn]
				}
				mesh.Positions = append(mesh.Positions, p.X, p.Y, p.Z)
				mesh.Normals = append(mesh.Normals, n.X, n.Y, n.Z)
				if hasUV {
					var uv math.Vec2
					if c.vt >= 0 {
						uv = dec.uvs[c.vt]
					}
					if src != nil {
						uv = math.Vec2{X: uv.X * src.repeat.X, Y: uv.Y * src.repeat.Y}.Add(src.offset)
					}
					// OBJ puts v = 0 at the bottom of the image.
					mesh.UVs = append(mesh.UVs, uv.X, 1-uv.Y)
				}
			}
			ids[ci] = id
		}
		for i := 2; i < len(ids); i++ {
			mesh.Indices = append(mesh.Indices, ids[0], ids[i-1], ids[i])
		}
	}

	if mat.NormalTexture != nil {
		if !hasUV {
			mat.NormalTexture = nil
			dec.warn("obj", fmt.Sprintf("%s: normal map without texture coordinates", name))
		} else if err := geometry.GenerateTangents(mesh); err != nil {
			return nil, err
		}
	}
	return mesh, mesh.Validate()
}

// renderMaterial converts the named MTL material. Blinn-Phong shininess
// maps to roughness when no PBR roughness is given.
func (dec *decoder) renderMaterial(name string, textures *texture.Loader, dir string) *render.Material {
	src, ok := dec.materials[name]
	if !ok || !src.defined {
		if name != DefaultMaterialName {
			dec.warn("mtl", "material not found: "+name)
		}
		src = newMtl(name)
	}

	mat := render.NewMaterial(name, render.TechniqueDeferredLit)
	mat.Albedo = src.diffuse.Vec4(src.opacity)
	mat.Blend = src.opacity < 1
	mat.Emissive = src.emissive
	mat.Metallic = 0
	if src.metallic >= 0 {
		mat.Metallic = src.metallic
	}
	switch {
	case src.roughness >= 0:
		mat.Roughness = src.roughness
	case src.shininess > 0:
		mat.Roughness = math32.Sqrt(2 / (src.shininess + 2))
	}
	// OBJ exporters do not agree on winding.
	mat.TwoSided = true

	if textures == nil {
		return mat
	}
	load := func(file string) *render.Texture {
		if file == "" {
			return nil
		}
		tex, err := textures.Load(path.Join(dir, file))
		if err != nil {
			dec.warn("mtl", fmt.Sprintf("%s: %v", name, err))
			return nil
		}
		return tex
	}
	mat.AlbedoTexture = load(src.mapKd)
	mat.EmissiveTexture = load(src.mapKe)
	mat.NormalTexture = load(src.mapBump)
	if mat.EmissiveTexture != nil && mat.Emissive == (math.Vec3{}) {
		mat.Emissive = math.Vec3{X: 1, Y: 1, Z: 1}
	}
	return mat
}
