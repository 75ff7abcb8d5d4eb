package manifest

import (
	"go.starlark.net/starlark"

	"github.com/ValentinNM/appbundler/pkg/bundler"
)

// ToolReq names a required external tool and the vendored directories that
// take precedence over PATH when resolving it.
type ToolReq struct {
	Name     string
	Vendored []string
}

// Hook is a list of shell fragments attached to a pipeline stage.
type Hook struct {
	Stage string
	Cmds  []string
	Env   map[string]string
}

// Manifest is the parsed bundle.star.
type Manifest struct {
	App        bundler.App
	Collects   []bundler.CollectSpec
	Tools      []ToolReq
	Hooks      []Hook
	Bootloader string
	Options    map[string]ScriptOption
}

// ToolNames returns the required tool names in declaration order. An empty
// manifest falls back to the default tool set.
func (m *Manifest) ToolNames() []string {
	names := make([]string, len(m.Tools))
	for idx, tool := range m.Tools {
		names[idx] = tool.Name
	}

	return names
}

// VendorDirs returns the union of all vendored directories, keeping the
// declaration order and dropping duplicates.
func (m *Manifest) VendorDirs() []string {
	seen := map[string]bool{}
	dirs := []string{}

	for _, tool := range m.Tools {
		for _, dir := range tool.Vendored {
			if !seen[dir] {
				seen[dir] = true
				dirs = append(dirs, dir)
			}
		}
	}

	return dirs
}

// HooksFor returns every hook declared for the given stage.
func (m *Manifest) HooksFor(stage string) []Hook {
	result := []Hook{}
	for _, hook := range m.Hooks {
		if hook.Stage == stage {
			result = append(result, hook)
		}
	}

	return result
}

// ScriptOption describes an option() declared by the manifest.
type ScriptOption struct {
	DefaultValue starlark.String
	Help         string
}

func (o ScriptOption) Default() string {
	return o.DefaultValue.GoString()
}
