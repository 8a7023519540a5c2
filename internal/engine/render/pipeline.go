package render

import "fmt"

// PipelineKey identifies a cached pipeline. Meshes with the same vertex
// streams and material technique share pipelines per frame index. Streams
// pins the vertex layout: two meshes with equal BufferCount but different
// streams never share a pipeline. Variant separates materials of one
// technique that compile to different shaders and is empty for
// fixed-shader techniques.
type PipelineKey struct {
	BufferCount int
	Streams     StreamMask
	Technique   Technique
	FrameIndex  uint32
	Variant     string
}

func (k PipelineKey) String() string {
	buffers := fmt.Sprintf("%d buffers", k.BufferCount)
	if k.Streams != 0 {
		buffers += " (" + k.Streams.String() + ")"
	}
	if k.Variant == "" {
		return fmt.Sprintf("%s/%s/frame %d", buffers, k.Technique, k.FrameIndex)
	}
	return fmt.Sprintf("%s/%s(%s)/frame %d", buffers, k.Technique, k.Variant, k.FrameIndex)
}

// PipelineCache holds at most one pipeline per key. Entries live until the
// backend is destroyed.
type PipelineCache[P any] struct {
	entries map[PipelineKey]P
	order   []PipelineKey
}

// NewPipelineCache creates an empty cache.
func NewPipelineCache[P any]() *PipelineCache[P] {
	return &PipelineCache[P]{entries: make(map[PipelineKey]P)}
}

// GetOrCreate returns the pipeline for key, calling create only on a miss.
// A failed create leaves the cache unchanged.
func (c *PipelineCache[P]) GetOrCreate(key PipelineKey, create func(PipelineKey) (P, error)) (P, error) {
	if p, ok := c.entries[key]; ok {
		return p, nil
	}
	p, err := create(key)
	if err != nil {
		return p, err
	}
	c.entries[key] = p
	c.order = append(c.order, key)
	return p, nil
}

// Get looks up key without creating.
func (c *PipelineCache[P]) Get(key PipelineKey) (P, bool) {
	p, ok := c.entries[key]
	return p, ok
}

// Len returns the number of cached pipelines.
func (c *PipelineCache[P]) Len() int {
	return len(c.entries)
}

// Each visits pipelines in creation order.
func (c *PipelineCache[P]) Each(fn func(PipelineKey, P)) {
	for _, k := range c.order {
		fn(k, c.entries[k])
	}
}
