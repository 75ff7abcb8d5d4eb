package tools

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"

	"github.com/ValentinNM/appbundler/pkg"
)

// ToolSpec describes a single downloadable tool archive in TOOLS.yml.
type ToolSpec struct {
	Condition  string   `yaml:"if,omitempty"`
	Rejections string   `yaml:"ifNot,omitempty"`
	URL        string   `yaml:"url"`
	Dest       string   `yaml:"dest"`
	Sha256     string   `yaml:"sha256"`
	Strip      int      `yaml:"strip"`
	MarkExec   []string `yaml:"markExec,omitempty"`
}

// ToolsConfig is the parsed TOOLS.yml.
type ToolsConfig struct {
	Vars  map[string]string   `yaml:"vars"`
	Tools map[string]ToolSpec `yaml:"tools"`
}

const (
	configName = "TOOLS.yml"
	stampsName = "TOOLS.stamps"
)

var varPattern = regexp.MustCompile(`\{([A-Z0-9_]+)\}`)

// LoadConfig reads TOOLS.yml and the stamps from previous runs. A missing
// stamps file is not an error, every entry is simply considered outdated.
func LoadConfig(projectRoot string) (ToolsConfig, map[string]string, error) {
	var cfg ToolsConfig

	cfgPath := filepath.Join(projectRoot, configName)
	cfgData, err := os.ReadFile(cfgPath)
	if err != nil {
		return cfg, nil, eris.Wrapf(err, "Could not open file %s.", cfgPath)
	}

	err = yaml.Unmarshal(cfgData, &cfg)
	if err != nil {
		return cfg, nil, eris.Wrapf(err, "Failed to parse %s.", cfgPath)
	}

	stamps := map[string]string{}
	stampPath := filepath.Join(projectRoot, stampsName)
	stampData, err := os.ReadFile(stampPath)
	if err != nil {
		if !eris.Is(err, os.ErrNotExist) {
			return cfg, nil, eris.Wrapf(err, "Failed to read stamps file %s.", stampPath)
		}
	} else {
		err = json.Unmarshal(stampData, &stamps)
		if err != nil {
			return cfg, nil, eris.Wrapf(err, "Failed to parse JSON file %s.", stampPath)
		}
	}

	return cfg, stamps, nil
}

// SaveStamps persists the stamp tokens for the next run.
func SaveStamps(projectRoot string, stamps map[string]string) error {
	data, err := json.Marshal(stamps)
	if err != nil {
		return eris.Wrap(err, "Failed to serialize stamps")
	}

	stampPath := filepath.Join(projectRoot, stampsName)
	err = os.WriteFile(stampPath, data, os.FileMode(0660))
	if err != nil {
		return eris.Wrapf(err, "Failed to write %s", stampPath)
	}

	return nil
}

// evalConditions interpolates {VAR} placeholders in the URL and checks the
// entry's if/ifNot variable conditions.
func evalConditions(spec *ToolSpec, vars map[string]string) bool {
	spec.URL = varPattern.ReplaceAllStringFunc(spec.URL, func(varName string) string {
		return vars[varName[1:len(varName)-1]]
	})

	for _, condition := range strings.Split(spec.Condition, ",") {
		if condition == "" {
			continue
		}

		if vars[strings.TrimSpace(condition)] == "" {
			return false
		}
	}

	for _, condition := range strings.Split(spec.Rejections, ",") {
		if condition == "" {
			continue
		}

		if vars[strings.TrimSpace(condition)] != "" {
			return false
		}
	}

	return true
}

func platformVars(cfg ToolsConfig) map[string]string {
	vars := map[string]string{}
	for k, v := range cfg.Vars {
		vars[k] = v
	}

	vars[runtime.GOOS] = "true"
	vars[runtime.GOARCH] = "true"
	vars["OS"] = runtime.GOOS
	vars["ARCH"] = runtime.GOARCH
	if os.Getenv("CI") == "true" {
		vars["ci"] = "true"
	}

	return vars
}

func getProgressBar(length int64, desc string) *progressbar.ProgressBar {
	if os.Getenv("CI") == "true" {
		// progress bars just clutter CI logs
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}

// FetchAll downloads and unpacks every tool entry whose conditions match the
// current platform. Entries with an unchanged URL, checksum and existing
// destination are skipped based on the recorded stamps.
func FetchAll(projectRoot string, cfg ToolsConfig, stamps map[string]string) error {
	client := &http.Client{Timeout: time.Minute * 30}
	vars := platformVars(cfg)

	names := make([]string, 0, len(cfg.Tools))
	for name := range cfg.Tools {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := cfg.Tools[name]
		if !evalConditions(&spec, vars) {
			continue
		}

		destPath := filepath.Join(projectRoot, spec.Dest)
		destInfo, err := os.Stat(destPath)
		destExists := err == nil

		stampToken := spec.URL + "#" + spec.Sha256
		if stamp, ok := stamps[name]; ok && stampToken == stamp && destExists {
			continue
		}

		if spec.Sha256 == "" {
			return eris.Errorf("Tool %s doesn't have a checksum", name)
		}

		pkg.PrintSubtask(name + ":  " + spec.URL)

		archivePath, err := download(client, spec.URL)
		if archivePath != "" {
			defer os.Remove(archivePath)
		}
		if err != nil {
			return err
		}

		err = VerifyChecksum(archivePath, spec.Sha256)
		if err != nil {
			return eris.Wrapf(err, "Download of %s is corrupted", spec.URL)
		}

		if destExists {
			pkg.PrintSubtask("Remove " + destPath)
			if destInfo.IsDir() {
				err = os.RemoveAll(destPath)
			} else {
				err = os.Remove(destPath)
			}
			if err != nil {
				return err
			}
		}

		err = extractArchive(archivePath, spec.URL, destPath, spec.Strip)
		if err != nil {
			return err
		}

		if runtime.GOOS != "windows" {
			// .zip files don't carry permissions which means we have to manually
			// fix permissions for binaries in .zip files
			for _, binPath := range spec.MarkExec {
				binPath = filepath.Join(destPath, binPath)
				fi, err := os.Stat(binPath)
				if err != nil {
					return eris.Wrapf(err, "Failed to read permissions for %s", binPath)
				}

				err = os.Chmod(binPath, fi.Mode()|0700)
				if err != nil {
					return eris.Wrapf(err, "Failed to mark %s as executable", binPath)
				}
			}
		}

		stamps[name] = stampToken
	}

	return nil
}

// download fetches the given URL into a temporary file. The caller removes
// the file once it's done.
func download(client *http.Client, url string) (string, error) {
	handle, err := os.CreateTemp("", "tool_dl_*.tmp")
	if err != nil {
		return "", eris.Wrap(err, "Failed to create temporary download file")
	}
	defer handle.Close()

	resp, err := client.Get(url)
	if err != nil {
		return handle.Name(), eris.Wrapf(err, "Failed to start download for %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return handle.Name(), eris.Errorf("Download of %s failed with status %d", url, resp.StatusCode)
	}

	bar := getProgressBar(resp.ContentLength, "     download")
	defer bar.Finish()

	_, err = io.Copy(io.MultiWriter(handle, bar), resp.Body)
	if err != nil {
		return handle.Name(), eris.Wrapf(err, "Failed during download of %s", url)
	}

	return handle.Name(), nil
}

// VerifyChecksum compares the sha256 digest of the given file with the
// expected hex digest.
func VerifyChecksum(path, expected string) error {
	handle, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "Failed to open %s", path)
	}
	defer handle.Close()

	hash := sha256.New()
	_, err = io.Copy(hash, handle)
	if err != nil {
		return eris.Wrapf(err, "Failed to calculate checksum for %s", path)
	}

	digest := hex.EncodeToString(hash.Sum(nil))
	if digest != expected {
		return eris.Errorf("Checksum check failed: expected %s but got %s", expected, digest)
	}

	return nil
}
