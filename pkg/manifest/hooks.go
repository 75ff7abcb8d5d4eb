package manifest

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

var defaultExecHandler = interp.DefaultExecHandler(2)

func execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "mv", "rm", "mkdir":
			// always use our cross-platform implementation for these operations
			// to make sure they behave consistently
			exe, err := os.Executable()
			if err == nil {
				args = append([]string{exe}, args...)
			}
		}
	}

	return defaultExecHandler(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

func hookEnv(hook Hook) expand.Environ {
	envVars := os.Environ()

	for name, value := range hook.Env {
		envVars = append(envVars, fmt.Sprintf("%s=%s", name, value))
	}

	return expand.ListEnviron(envVars...)
}

// RunHooks executes every hook attached to the given stage. Commands run
// relative to baseDir with -e semantics, the first failing command aborts
// the stage.
func RunHooks(ctx context.Context, m *Manifest, stage, baseDir string, dryRun bool) error {
	hooks := m.HooksFor(stage)
	if len(hooks) == 0 {
		return nil
	}

	parser := syntax.NewParser()
	printer := syntax.NewPrinter(syntax.Minify(true))
	strBuffer := strings.Builder{}

	for _, hook := range hooks {
		runner, err := interp.New(
			interp.Dir(baseDir),
			interp.Env(hookEnv(hook)),
			interp.ExecHandlers(func(interp.ExecHandlerFunc) interp.ExecHandlerFunc { return execHandler }),
			interp.OpenHandler(openHandler),
			interp.StdIO(nil, os.Stdout, os.Stderr),
			interp.Params("-e"),
		)
		if err != nil {
			return eris.Wrap(err, "Failed to initialize the hook runner")
		}

		for idx, item := range hook.Cmds {
			result, err := parser.Parse(strings.NewReader(item), fmt.Sprintf("%s:%d", stage, idx))
			if err != nil {
				return eris.Wrapf(err, "failed to parse hook command %s", item)
			}

			for _, stmt := range result.Stmts {
				strBuffer.Reset()
				printer.Print(&strBuffer, stmt)
				log(ctx).Info().
					Str("stage", stage).
					Bool("command", true).
					Msg(strBuffer.String())

				if dryRun {
					continue
				}

				err = runner.Run(ctx, stmt)
				if err != nil {
					return eris.Wrapf(err, "hook command %s failed", strBuffer.String())
				}

				if runner.Exited() {
					return nil
				}
			}

			if err = ctx.Err(); err != nil {
				return err
			}
		}
	}

	return nil
}
