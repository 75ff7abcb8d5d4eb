package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunHooks(t *testing.T) {
	base := t.TempDir()
	m := &Manifest{
		Hooks: []Hook{
			{Stage: "post-bundle", Cmds: []string{
				"echo hello > hook.txt",
				"echo $HOOK_FLAVOR >> hook.txt",
			}, Env: map[string]string{"HOOK_FLAVOR": "vanilla"}},
		},
	}

	err := RunHooks(testContext(), m, "post-bundle", base, false)
	if err != nil {
		t.Fatalf("expected the hooks to run: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(base, "hook.txt"))
	if err != nil {
		t.Fatal(err)
	}

	if string(data) != "hello\nvanilla\n" {
		t.Errorf("unexpected hook output %q", string(data))
	}
}

func TestRunHooksDryRun(t *testing.T) {
	base := t.TempDir()
	m := &Manifest{
		Hooks: []Hook{
			{Stage: "pre-bundle", Cmds: []string{"echo hello > hook.txt"}},
		},
	}

	err := RunHooks(testContext(), m, "pre-bundle", base, true)
	if err != nil {
		t.Fatalf("expected the dry run to succeed: %v", err)
	}

	_, err = os.Stat(filepath.Join(base, "hook.txt"))
	if !os.IsNotExist(err) {
		t.Error("expected the dry run to leave no files behind")
	}
}

func TestRunHooksFailingCommand(t *testing.T) {
	base := t.TempDir()
	m := &Manifest{
		Hooks: []Hook{
			{Stage: "pre-bundle", Cmds: []string{"false", "echo hello > hook.txt"}},
		},
	}

	err := RunHooks(testContext(), m, "pre-bundle", base, false)
	if err == nil {
		t.Fatal("expected the failing command to abort the stage")
	}

	_, statErr := os.Stat(filepath.Join(base, "hook.txt"))
	if !os.IsNotExist(statErr) {
		t.Error("expected the commands after the failure to be skipped")
	}
}

func TestRunHooksIgnoresOtherStages(t *testing.T) {
	base := t.TempDir()
	m := &Manifest{
		Hooks: []Hook{
			{Stage: "post-bundle", Cmds: []string{"echo hello > hook.txt"}},
		},
	}

	err := RunHooks(testContext(), m, "pre-bundle", base, false)
	if err != nil {
		t.Fatal(err)
	}

	_, err = os.Stat(filepath.Join(base, "hook.txt"))
	if !os.IsNotExist(err) {
		t.Error("expected only matching stages to run")
	}
}
