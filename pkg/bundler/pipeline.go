package bundler

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"

	"github.com/ValentinNM/appbundler/pkg/tools"
)

// Hooks maps stage names to callbacks that run between pipeline stages.
type Hooks map[string]func(context.Context) error

// Options control the pipeline run.
type Options struct {
	// OutputDir receives the collected directory and the app bundle.
	OutputDir string
	// BuildDir holds intermediate artifacts (payload archive, launcher).
	BuildDir string
	// Bootloader is the stub executable the payload gets appended to. When
	// empty, vendor/bootloader/launcher below the project root is used.
	Bootloader string
	// VendorDirs are searched for external tools before PATH.
	VendorDirs []string
	// Tools overrides the default required tool set.
	Tools []string
	// SkipBundle stops the pipeline after the collect stage.
	SkipBundle bool
}

// Result describes the produced artifacts.
type Result struct {
	BuildID   string
	Tools     map[string]string
	Payload   string
	Launcher  string
	DistDir   string
	BundleDir string
}

// Run executes the whole pipeline: tool resolution, resource collection,
// analysis, payload archive, launcher assembly, directory collection and
// bundle assembly. The first failing stage aborts the run.
func Run(ctx context.Context, projectRoot string, app App, specs []CollectSpec, opts Options, hooks Hooks) (*Result, error) {
	result := &Result{BuildID: nanoid.New()}
	logger := log(ctx)

	if opts.OutputDir == "" {
		opts.OutputDir = "dist"
	}
	if opts.BuildDir == "" {
		opts.BuildDir = "build"
	}
	if opts.Bootloader == "" {
		opts.Bootloader = filepath.Join("vendor", "bootloader", "launcher")
	}
	for _, dir := range []*string{&opts.OutputDir, &opts.BuildDir, &opts.Bootloader} {
		if !filepath.IsAbs(*dir) {
			*dir = filepath.Join(projectRoot, *dir)
		}
	}

	logger.Info().Str("build", result.BuildID).Msgf("Bundling %s", app.Name)

	resolver := tools.NewResolver(opts.VendorDirs...)
	if len(opts.Tools) > 0 {
		resolver.Tools = opts.Tools
	}
	if len(resolver.VendorDirs) == 0 {
		// manifests without tool() declarations still get the conventional
		// vendored directory, it has to win over PATH
		resolver.VendorDirs = []string{filepath.Join("vendor", "fftools")}
	}
	for idx, dir := range resolver.VendorDirs {
		if !filepath.IsAbs(dir) {
			resolver.VendorDirs[idx] = filepath.Join(projectRoot, dir)
		}
	}

	resolved, err := resolver.Resolve()
	if err != nil {
		return nil, err
	}
	result.Tools = resolved

	for name, path := range resolved {
		source := "PATH"
		if resolver.Vendored(path) {
			source = "vendored"
		}
		logger.Info().Str("source", source).Msgf("Using %s at %s", name, path)
	}

	if ffmpeg, ok := resolved["ffmpeg"]; ok {
		version, err := tools.ProbeVersion(ctx, ffmpeg)
		if err != nil {
			logger.Warn().Err(err).Msg("Version probe failed")
		} else {
			logger.Info().Msg(version)
		}
	}

	resources, err := CollectAll(projectRoot, specs)
	if err != nil {
		return nil, err
	}

	analysis, err := Analyze(projectRoot, app, resources, resolved)
	if err != nil {
		return nil, err
	}

	if len(analysis.Imports) > 0 {
		logger.Debug().Strs("imports", analysis.Imports).Msg("Hidden imports")
	}

	err = os.MkdirAll(opts.BuildDir, os.FileMode(0770))
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to create %s", opts.BuildDir)
	}

	result.Payload = filepath.Join(opts.BuildDir, app.Name+".bnar")
	logger.Info().Str("path", result.Payload).Msg("Writing payload archive")

	writer, err := NewPayloadWriter(result.Payload)
	if err != nil {
		return nil, err
	}

	err = writer.AddEntries(analysis.Pure)
	if err != nil {
		writer.Close()
		return nil, err
	}

	err = writer.Close()
	if err != nil {
		return nil, err
	}

	result.Launcher = filepath.Join(opts.BuildDir, app.Name)
	logger.Info().Str("path", result.Launcher).Msg("Assembling launcher")

	err = BuildLauncher(opts.Bootloader, result.Payload, result.Launcher, app.Entry)
	if err != nil {
		return nil, err
	}

	result.DistDir = filepath.Join(opts.OutputDir, app.Name)
	logger.Info().Str("path", result.DistDir).Msg("Collecting distribution directory")

	err = CollectDist(result.DistDir, analysis, result.Launcher)
	if err != nil {
		return nil, err
	}

	if opts.SkipBundle {
		return result, nil
	}

	err = runHook(ctx, hooks, "pre-bundle")
	if err != nil {
		return nil, err
	}

	logger.Info().Msg("Assembling application bundle")
	result.BundleDir, err = BuildAppBundle(opts.OutputDir, analysis, result.DistDir)
	if err != nil {
		return nil, err
	}

	err = runHook(ctx, hooks, "post-bundle")
	if err != nil {
		return nil, err
	}

	logger.Info().Str("path", result.BundleDir).Msg("Done")
	return result, nil
}

func runHook(ctx context.Context, hooks Hooks, stage string) error {
	hook, ok := hooks[stage]
	if !ok {
		return nil
	}

	err := hook(ctx)
	if err != nil {
		return eris.Wrapf(err, "Hook %s failed", stage)
	}

	return nil
}
