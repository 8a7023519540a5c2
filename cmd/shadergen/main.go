// Command shadergen compiles the embedded Vulkan GLSL stages into the
// SPIR-V files the Vulkan backend loads, one file per material variant.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/renderlab/internal/engine/shader"
	"github.com/Faultbox/renderlab/internal/logger"
)

var (
	flagOut   = flag.String("out", "shaders", "SPIR-V output directory")
	flagGlslc = flag.String("glslc", "glslc", "glslc executable")
	flagLevel = flag.String("log-level", "info", "log level")
)

// compiler turns one GLSL source file into a SPIR-V file.
type compiler func(ctx context.Context, stage, src, dst string) error

func glslc(bin string) compiler {
	return func(ctx context.Context, stage, src, dst string) error {
		cmd := exec.CommandContext(ctx, bin, "-fshader-stage="+stage, "-o", dst, src)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("%s: %w\n%s", filepath.Base(dst), err, out)
		}
		return nil
	}
}

// generate writes every compile's source to a scratch directory and runs
// compile on it. All failures are reported together.
func generate(ctx context.Context, outDir string, compiles []shader.Compile, compile compiler) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}
	scratch, err := os.MkdirTemp("", "shadergen")
	if err != nil {
		return fmt.Errorf("scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	var errs error
	for _, c := range compiles {
		text, err := shader.VulkanSource(c)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		src := filepath.Join(scratch, c.Output+".glsl")
		if err := os.WriteFile(src, []byte(text), 0o644); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if err := compile(ctx, c.Stage(), src, filepath.Join(outDir, c.Output)); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		logger.Debug("compiled", zap.String("output", c.Output), zap.Strings("defines", c.Defines))
	}
	return errs
}

func main() {
	flag.Parse()
	if err := logger.Init(*flagLevel, ""); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	compiles := shader.VulkanCompiles()
	if err := generate(context.Background(), *flagOut, compiles, glslc(*flagGlslc)); err != nil {
		for _, e := range multierr.Errors(err) {
			logger.Error("compile failed", zap.Error(e))
		}
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("shaders compiled", zap.Int("count", len(compiles)), zap.String("out", *flagOut))
}
