package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/Faultbox/renderlab/internal/engine/shader"
	"github.com/Faultbox/renderlab/internal/logger"
)

func TestGenerateWritesEveryOutput(t *testing.T) {
	logger.Nop()
	out := t.TempDir()
	compiles := shader.VulkanCompiles()

	var stages []string
	copySource := func(_ context.Context, stage, src, dst string) error {
		stages = append(stages, stage)
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		return os.WriteFile(dst, data, 0o644)
	}
	require.NoError(t, generate(context.Background(), out, compiles, copySource))
	require.Len(t, stages, len(compiles))

	for i, c := range compiles {
		assert.Equal(t, c.Stage(), stages[i])
		data, err := os.ReadFile(filepath.Join(out, c.Output))
		require.NoError(t, err, c.Output)
		assert.True(t, strings.HasPrefix(string(data), shader.VulkanGLSLVersion), c.Output)
	}
}

func TestGenerateCollectsFailures(t *testing.T) {
	logger.Nop()
	compiles := []shader.Compile{
		{Output: "DepthPrepass.vert.spv", Source: "depth.vert"},
		{Output: "Missing.frag.spv", Source: "missing.frag"},
		{Output: "DepthPrepass.frag.spv", Source: "depth.frag"},
	}
	failVertex := func(_ context.Context, stage, _, _ string) error {
		if stage == "vert" {
			return errors.New("vertex broke")
		}
		return nil
	}
	err := generate(context.Background(), t.TempDir(), compiles, failVertex)
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "vertex broke")
	assert.Contains(t, errs[1].Error(), "missing.frag")
}
