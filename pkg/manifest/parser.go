package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"

	"github.com/ValentinNM/appbundler/pkg/bundler"
)

type parserCtx struct {
	ctx          context.Context
	filepath     string
	projectRoot  string
	manifest     *Manifest
	optionValues map[string]string
	yamlCache    map[string]starlark.Value
}

func getCtx(thread *starlark.Thread) *parserCtx {
	return thread.Local("parserCtx").(*parserCtx)
}

func info(thread *starlark.Thread, msg string, args ...interface{}) {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos

	log(ctx.ctx).Info().
		Msgf("%s:%d:%d: %s", simplifyPath(ctx, ctx.filepath), pos.Line, pos.Col, fmt.Sprintf(msg, args...))
}

// * Builtin functions

func starApp(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var app bundler.App
	var srcs *starlark.List

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &app.Name, "entry", &app.Entry,
		"version?", &app.Version, "identifier?", &app.Identifier, "icon?", &app.Icon, "srcs?", &srcs)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if ctx.manifest.App.Name != "" {
		return nil, eris.Errorf("app() was already called for %s, only one application per manifest is supported", ctx.manifest.App.Name)
	}

	app.Srcs, err = iterableToStringSlice(srcs, "srcs")
	if err != nil {
		return nil, err
	}

	ctx.manifest.App = app
	return starlark.None, nil
}

func starCollect(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var spec bundler.CollectSpec
	var datas, binaries, imports *starlark.List

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &spec.Name, "base?", &spec.Base,
		"datas?", &datas, "binaries?", &binaries, "imports?", &imports)
	if err != nil {
		return nil, err
	}

	if spec.Base == "" {
		spec.Base = spec.Name
	}

	spec.Datas, err = iterableToStringSlice(datas, "datas")
	if err != nil {
		return nil, err
	}

	spec.Binaries, err = iterableToStringSlice(binaries, "binaries")
	if err != nil {
		return nil, err
	}

	spec.Imports, err = iterableToStringSlice(imports, "imports")
	if err != nil {
		return nil, err
	}

	if len(spec.Datas) == 0 && len(spec.Binaries) == 0 && len(spec.Imports) == 0 {
		return nil, eris.Errorf("collect(%s) doesn't declare any files or imports", spec.Name)
	}

	ctx := getCtx(thread)
	ctx.manifest.Collects = append(ctx.manifest.Collects, spec)
	return starlark.None, nil
}

func starTool(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var req ToolReq
	var vendored *starlark.List

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &req.Name, "vendored?", &vendored)
	if err != nil {
		return nil, err
	}

	req.Vendored, err = iterableToStringSlice(vendored, "vendored")
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	for _, existing := range ctx.manifest.Tools {
		if existing.Name == req.Name {
			return nil, eris.Errorf("tool %s was already declared", req.Name)
		}
	}

	ctx.manifest.Tools = append(ctx.manifest.Tools, req)
	return starlark.None, nil
}

func starHook(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var hook Hook
	var cmds *starlark.List
	var env *starlark.Dict

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "stage", &hook.Stage, "cmds", &cmds, "env?", &env)
	if err != nil {
		return nil, err
	}

	switch hook.Stage {
	case "pre-bundle", "post-bundle":
	default:
		return nil, eris.Errorf("unknown hook stage %s, expected pre-bundle or post-bundle", hook.Stage)
	}

	hook.Cmds, err = iterableToStringSlice(cmds, "cmds")
	if err != nil {
		return nil, err
	}

	hook.Env, err = dictToStringMap(env, "env")
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	ctx.manifest.Hooks = append(ctx.manifest.Hooks, hook)
	return starlark.None, nil
}

func starBootloader(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "path", &path)
	if err != nil {
		return nil, err
	}

	getCtx(thread).manifest.Bootloader = path
	return starlark.None, nil
}

func starOption(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultValue starlark.String
	var help string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &defaultValue, "help?", &help)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	ctx.manifest.Options[name] = ScriptOption{
		DefaultValue: defaultValue,
		Help:         help,
	}

	if value, ok := ctx.optionValues[name]; ok {
		return starlark.String(value), nil
	}

	return defaultValue, nil
}

func starResolvePath(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, eris.Errorf("unexpected keyword argument %s", kwargs[0][0].(starlark.String).GoString())
	}
	if len(args) < 1 {
		return nil, eris.New("expects at least one argument")
	}

	parts := make([]string, len(args))
	for idx, path := range args {
		value, ok := path.(starlark.String)
		if !ok {
			return nil, eris.Errorf("only accepts string arguments but argument %d was a %s", idx, path.Type())
		}
		parts[idx] = value.GoString()
	}

	return starlark.String(normalizePath(getCtx(thread), parts...)), nil
}

func starGetenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var fallback string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &fallback)
	if err != nil {
		return nil, err
	}

	value, ok := os.LookupEnv(name)
	if !ok {
		value = fallback
	}

	return starlark.String(value), nil
}

func starReadYaml(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var path string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "path", &path)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	path = normalizePath(ctx, path)
	if cached, ok := ctx.yamlCache[path]; ok {
		return cached, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}

	var parsed interface{}
	err = yaml.Unmarshal(data, &parsed)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", path)
	}

	value, err := interfaceToStarlark(parsed)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to convert %s", path)
	}

	ctx.yamlCache[path] = value
	return value, nil
}

func starInfo(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	info(thread, "%s", message)
	return starlark.None, nil
}

func starWarn(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos
	log(ctx.ctx).Warn().
		Msgf("%s:%d:%d: %s", simplifyPath(ctx, ctx.filepath), pos.Line, pos.Col, message)

	return starlark.None, nil
}

func starError(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	return nil, eris.New(message)
}

func interfaceToStarlark(value interface{}) (starlark.Value, error) {
	switch value := value.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(value), nil
	case int:
		return starlark.MakeInt(value), nil
	case bool:
		return starlark.Bool(value), nil
	case float64:
		return starlark.Float(value), nil
	case []interface{}:
		items := make(starlark.Tuple, len(value))
		for idx, raw := range value {
			item, err := interfaceToStarlark(raw)
			if err != nil {
				return nil, err
			}
			items[idx] = item
		}
		return items, nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(value))
		for k, v := range value {
			item, err := interfaceToStarlark(v)
			if err != nil {
				return nil, err
			}
			err = dict.SetKey(starlark.String(k), item)
			if err != nil {
				return nil, err
			}
		}
		return dict, nil
	}

	return nil, eris.Errorf("encountered unsupported type %T", value)
}

// Parse executes the manifest script and returns the collected declarations.
// The passed options override option() defaults declared by the script.
func Parse(ctx context.Context, filename, projectRoot string, options map[string]string) (*Manifest, error) {
	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, err
	}

	filename, err = filepath.Abs(filename)
	if err != nil {
		return nil, err
	}

	builtins := starlark.StringDict{
		"OS":           starlark.String(runtime.GOOS),
		"ARCH":         starlark.String(runtime.GOARCH),
		"app":          starlark.NewBuiltin("app", starApp),
		"collect":      starlark.NewBuiltin("collect", starCollect),
		"tool":         starlark.NewBuiltin("tool", starTool),
		"hook":         starlark.NewBuiltin("hook", starHook),
		"bootloader":   starlark.NewBuiltin("bootloader", starBootloader),
		"option":       starlark.NewBuiltin("option", starOption),
		"resolve_path": starlark.NewBuiltin("resolve_path", starResolvePath),
		"getenv":       starlark.NewBuiltin("getenv", starGetenv),
		"read_yaml":    starlark.NewBuiltin("read_yaml", starReadYaml),
		"info":         starlark.NewBuiltin("info", starInfo),
		"warn":         starlark.NewBuiltin("warn", starWarn),
		"error":        starlark.NewBuiltin("error", starError),
	}

	thread := &starlark.Thread{
		Name: "manifest",
		Print: func(thread *starlark.Thread, msg string) {
			log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	threadCtx := parserCtx{
		ctx:         ctx,
		filepath:    filename,
		projectRoot: projectRoot,
		manifest: &Manifest{
			Options: make(map[string]ScriptOption),
		},
		optionValues: options,
		yamlCache:    make(map[string]starlark.Value),
	}
	thread.SetLocal("parserCtx", &threadCtx)

	script, err := os.ReadFile(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read file")
	}

	_, err = starlark.ExecFile(thread, simplifyPath(&threadCtx, filename), script, builtins)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, eris.Errorf("failed to execute %s:\n%s", simplifyPath(&threadCtx, filename), evalError.Backtrace())
		}
		return nil, eris.Wrap(err, "failed to execute")
	}

	if threadCtx.manifest.App.Name == "" {
		return nil, eris.Errorf("%s did not declare an application", simplifyPath(&threadCtx, filename))
	}

	return threadCtx.manifest, nil
}
