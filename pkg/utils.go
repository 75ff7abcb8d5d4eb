package pkg

import (
	"os"
	"path/filepath"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
)

// ManifestName is the file that marks the root of a bundled project.
const ManifestName = "bundle.star"

// FindProjectRoot walks up from the given directory until it finds the
// project manifest and returns the directory containing it.
func FindProjectRoot(start string) (string, error) {
	current, err := filepath.Abs(start)
	if err != nil {
		return "", eris.Wrapf(err, "Failed to resolve %s", start)
	}

	for {
		_, err := os.Stat(filepath.Join(current, ManifestName))
		if err == nil {
			return current, nil
		}

		if !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrap(err, "Error ocurred while searching for project root")
		}

		nextPath := filepath.Dir(current)
		if current == nextPath {
			break
		}
		current = nextPath
	}

	return "", eris.Errorf("No %s found in %s or any parent directory", ManifestName, start)
}

func PrintTask(msg string) {
	colorstring.Printf("[blue][bold]==>[default] %s\n", msg)
}

func PrintSubtask(msg string) {
	colorstring.Printf("[green][bold]  ->[reset] %s\n", msg)
}

func PrintError(msg string) {
	colorstring.Printf("[red][bold]  ->[reset] %s\n", msg)
}
