package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArcanaFramework/frametree-flywheel/internal/config"
	"github.com/ArcanaFramework/frametree-flywheel/internal/store/remote"
)

// execute runs the root command with args against an isolated store registry.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decode(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func setHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.EnvHome, home)
	return home
}

func TestStoreAddAndList(t *testing.T) {
	home := setHome(t)

	out, err := execute(t, "store", "add", "work")
	require.NoError(t, err)
	assert.Contains(t, out, `✓ Registered local store "work"`)

	_, err = execute(t, "store", "add", "central", "--type", "remote",
		"--server", "/srv/catalogue.db", "--user", "admin", "--password", "secret")
	require.NoError(t, err)

	cfg, err := config.Load(home)
	require.NoError(t, err)
	assert.Equal(t, []string{"central", "work"}, cfg.Names())

	out, err = execute(t, "store", "ls")
	require.NoError(t, err)
	assert.Equal(t, "central\tremote\tadmin@/srv/catalogue.db\nwork\tlocal\n", out)

	out, err = execute(t, "--format", "json", "store", "ls")
	require.NoError(t, err)
	resp := decode(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.NotContains(t, out, "secret")
}

func TestStoreAddRejectsDuplicate(t *testing.T) {
	setHome(t)

	_, err := execute(t, "store", "add", "work")
	require.NoError(t, err)

	out, err := execute(t, "store", "add", "work")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]: cannot register store")
	assert.Contains(t, err.Error(), "already registered")
}

func TestStoreRemove(t *testing.T) {
	setHome(t)

	_, err := execute(t, "store", "add", "work")
	require.NoError(t, err)
	_, err = execute(t, "store", "rm", "work")
	require.NoError(t, err)

	out, err := execute(t, "store", "ls")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = execute(t, "store", "rm", "work")
	require.Error(t, err)
}

func TestBlueprintMakeLocal(t *testing.T) {
	setHome(t)
	id := filepath.Join(t.TempDir(), "simple")

	_, err := execute(t, "store", "add", "work")
	require.NoError(t, err)

	out, err := execute(t, "blueprint", "make", "simple", "work//"+id+"@analysis")
	require.NoError(t, err)
	assert.Contains(t, out, "(3 leaf rows)")

	out, err = execute(t, "dataset", "rows", "work//"+id+"@analysis", "--frequency", "d")
	require.NoError(t, err)
	assert.Equal(t, "d1\nd2\nd3\n", out)

	out, err = execute(t, "dataset", "rows", "work//"+id+"@analysis", "-f", "root")
	require.NoError(t, err)
	assert.Equal(t, "<root>\n", out)

	out, err = execute(t, "--format", "json", "dataset", "show", "work//"+id+"@analysis")
	require.NoError(t, err)
	resp := decode(t, out)
	def, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, id, def["id"])
	assert.Equal(t, []any{"a", "b", "c", "d"}, def["hierarchy"])
}

func TestBlueprintMakeRemote(t *testing.T) {
	setHome(t)
	server := filepath.Join(t.TempDir(), "service.db")
	require.NoError(t, remote.Provision(context.Background(), server, "admin", "secret"))

	_, err := execute(t, "store", "add", "central", "--type", "remote",
		"--server", server, "--user", "admin", "--password", "secret", "--cache-dir", t.TempDir())
	require.NoError(t, err)

	out, err := execute(t, "--format", "json", "blueprint", "make", "with_excludes", "central//study")
	require.NoError(t, err)
	resp := decode(t, out)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "with_excludes", data["blueprint"])
	assert.Equal(t, map[string]any{"root": float64(1), "a+b+c+d": float64(8)}, data["rows"])

	out, err = execute(t, "dataset", "rows", "central//study", "-f", "b")
	require.NoError(t, err)
	assert.Equal(t, "b1\nb3\n", out)
}

func TestBlueprintMakeFromFile(t *testing.T) {
	setHome(t)
	id := filepath.Join(t.TempDir(), "imaging")

	_, err := execute(t, "store", "add", "work")
	require.NoError(t, err)

	file := filepath.Join("..", "blueprint", "testdata", "blueprints.yaml")
	out, err := execute(t, "blueprint", "ls", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "imaging\tsubject,session\t[2 2]")

	_, err = execute(t, "blueprint", "make", "imaging", "work//"+id, "--file", file)
	require.NoError(t, err)

	out, err = execute(t, "dataset", "rows", "work//"+id, "-f", "subject")
	require.NoError(t, err)
	assert.Equal(t, "subject1\nsubject2\n", out)
}

func TestBlueprintMakeUnknown(t *testing.T) {
	setHome(t)
	_, err := execute(t, "store", "add", "work")
	require.NoError(t, err)

	out, err := execute(t, "blueprint", "make", "missing", "work//"+t.TempDir())
	require.Error(t, err)
	assert.Contains(t, out, "Error [E005]: unknown blueprint")
}

func TestDatasetDefineAndShow(t *testing.T) {
	setHome(t)
	id := filepath.Join(t.TempDir(), "study")

	_, err := execute(t, "store", "add", "work")
	require.NoError(t, err)

	out, err := execute(t, "dataset", "define", "work//"+id+"@qc",
		"--space", "clinical", "--dims", "subject,session",
		"--exclude", "subject=subject3,subject4", "--include", "session=baseline")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Defined dataset work//"+id+"@qc")

	out, err = execute(t, "dataset", "show", "work//"+id+"@qc")
	require.NoError(t, err)
	assert.Contains(t, out, "space:     clinical (subject, session)")
	assert.Contains(t, out, "hierarchy: subject / session")
	assert.Contains(t, out, "exclude:   subject=subject3,subject4")
	assert.Contains(t, out, "include:   session=baseline")
	assert.Contains(t, out, "name:      qc")

	// no leaves have been created under the dataset directory
	out, err = execute(t, "dataset", "rows", "work//"+id+"@qc")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDatasetDefineErrors(t *testing.T) {
	setHome(t)
	_, err := execute(t, "store", "add", "work")
	require.NoError(t, err)

	tests := []struct {
		name    string
		args    []string
		wantOut string
	}{
		{"bad locator", []string{"dataset", "define", "study", "--dims", "a"}, "E002"},
		{"unknown store", []string{"dataset", "define", "other//study", "--dims", "a"}, "E005"},
		{"bad filter", []string{"dataset", "define", "work//study", "--dims", "a", "--include", "a"}, "E002"},
		{"unknown filter dim", []string{"dataset", "define", "work//study", "--dims", "a", "--exclude", "b=b1"}, "E002"},
		{"incomplete hierarchy", []string{"dataset", "define", "work//study", "--dims", "a,b", "--hierarchy", "a"}, "E002"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, out, tt.wantOut)
		})
	}
}

func TestDatasetShowMissing(t *testing.T) {
	setHome(t)
	_, err := execute(t, "store", "add", "work")
	require.NoError(t, err)

	out, err := execute(t, "--format", "json", "dataset", "show", "work//"+t.TempDir())
	require.Error(t, err)
	resp := decode(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}
