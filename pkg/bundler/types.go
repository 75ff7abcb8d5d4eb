package bundler

// App describes the application being packaged.
type App struct {
	Name       string
	Entry      string
	Version    string
	Identifier string
	Icon       string
	Srcs       []string
}

// ResourceEntry maps a file on disk to its destination inside the bundle.
type ResourceEntry struct {
	Source string
	Dest   string
}

// CollectSpec names an auxiliary package whose files have to be carried into
// the bundle. The patterns are resolved relative to Base; a trailing "..."
// element matches everything below a directory.
type CollectSpec struct {
	Name     string
	Base     string
	Datas    []string
	Binaries []string
	Imports  []string
}

// Resources holds the flattened collection results. The three sequences keep
// the order in which the collect specs were declared.
type Resources struct {
	Datas    []ResourceEntry
	Binaries []ResourceEntry
	Imports  []string
}

// Analysis is the result of the first pipeline stage: everything the later
// stages need to assemble the bundle.
type Analysis struct {
	App      App
	Root     string
	Pure     []ResourceEntry
	Datas    []ResourceEntry
	Binaries []ResourceEntry
	Imports  []string
	Tools    map[string]string
}
