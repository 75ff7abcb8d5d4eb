// Package manifest parses bundle.star files. The manifest is a Starlark
// script so conditional packaging logic (per-OS resources, optional tools)
// stays in the project instead of being hardcoded here.
package manifest
