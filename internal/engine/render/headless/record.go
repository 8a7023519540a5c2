package headless

import (
	"fmt"
	"strings"

	"github.com/Faultbox/renderlab/internal/engine/render"
)

// Stats returns the work counters.
func (b *Backend) Stats() Stats {
	return b.stats
}

// Submissions returns every submission recorded since the last reset.
func (b *Backend) Submissions() []Submission {
	return b.submissions
}

// ResetSubmissions forgets recorded submissions.
func (b *Backend) ResetSubmissions() {
	b.submissions = nil
}

// CountSubmissions returns how many recorded submissions targeted views of
// type t.
func (b *Backend) CountSubmissions(t render.ViewType) int {
	n := 0
	for _, s := range b.submissions {
		if s.Type == t {
			n++
		}
	}
	return n
}

// UniformData returns the host copy of ub.
func (b *Backend) UniformData(ub *render.UniformBuffer) ([]byte, bool) {
	return b.uniforms.Get(ub.Handle())
}

// PipelineCount returns the number of distinct pipelines created.
func (b *Backend) PipelineCount() int {
	return b.pipelines.Len()
}

// Summary describes the recorded work in a few lines.
func (b *Backend) Summary() string {
	var sb strings.Builder
	draws := 0
	for _, s := range b.submissions {
		draws += len(s.Draws)
	}
	fmt.Fprintf(&sb, "submissions: %d (screen %d, shadow %d, shadow cube %d), draws: %d\n",
		len(b.submissions),
		b.CountSubmissions(render.ViewScreen),
		b.CountSubmissions(render.ViewShadow),
		b.CountSubmissions(render.ViewShadowCube),
		draws)
	fmt.Fprintf(&sb, "meshes: %d, materials: %d, textures: %d, pipelines: %d\n",
		b.meshes.Len(), b.materials.Len(), b.textures.Len(), b.pipelines.Len())
	fmt.Fprintf(&sb, "uniform writes: %d, swapchain creations: %d", b.stats.UniformWrites, b.stats.SwapchainCreates)
	return sb.String()
}
