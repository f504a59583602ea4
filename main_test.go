package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.aimuz.me/basar/internal/types"
)

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(home, ".cache"))

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "basar dev")
}

func TestConfigInitAndShow(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "basar.toml")

	stdout, _, err := executeCLI(t, home, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, path)

	_, _, err = executeCLI(t, home, "config", "init", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = executeCLI(t, home, "config", "init", "--config", path, "--force")
	require.NoError(t, err)

	stdout, _, err = executeCLI(t, home, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "[gesture]")
	assert.Contains(t, stdout, "window_ms = 600")
	assert.Contains(t, stdout, "locale = 'ar-SA'")
}

func TestSnap(t *testing.T) {
	home := t.TempDir()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("mode") {
		case "ocr":
			_, _ = io.WriteString(w, `{"text": "EXIT"}`)
		default:
			_, _ = io.WriteString(w, `{"objects": [{"label": "chair", "distance_label": "near"}, "door"]}`)
		}
	}))
	defer ts.Close()

	cfgPath := filepath.Join(home, "config.toml")
	cfgData := "[perception]\nurl = \"" + ts.URL + "\"\n\n[narration]\nengine = \"console\"\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgData), 0o600))

	image := filepath.Join(home, "frame.jpg")
	require.NoError(t, os.WriteFile(image, []byte("\xff\xd8\xff\xe0jpeg"), 0o644))

	stdout, _, err := executeCLI(t, home, "snap", "--config", cfgPath, "--image", image)
	require.NoError(t, err)
	assert.Equal(t, "- chair near\n- door\n", stdout)

	stdout, _, err = executeCLI(t, home, "snap", "--config", cfgPath, "--image", image, "--mode", "read", "--json")
	require.NoError(t, err)
	var res types.Result
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, types.ResultText, res.Kind)
	assert.Equal(t, "EXIT", res.Text)

	_, _, err = executeCLI(t, home, "snap", "--config", cfgPath, "--image", image, "--mode", "read", "--speak")
	require.NoError(t, err, "console narration blocks until spoken")

	_, _, err = executeCLI(t, home, "snap", "--config", cfgPath, "--image", image, "--mode", "idle")
	assert.Error(t, err)
}

func TestPrintResult(t *testing.T) {
	tests := []struct {
		name string
		res  types.Result
		want string
	}{
		{
			name: "objects and summary",
			res: types.Result{Kind: types.ResultDetection, Summary: "a chair ahead", Objects: []types.Object{
				{Label: "chair", Distance: "2m"},
			}},
			want: "- chair 2m\na chair ahead\n",
		},
		{
			name: "empty detection shows message",
			res:  types.Result{Kind: types.ResultDetection, Message: "no objects detected"},
			want: "no objects detected\n",
		},
		{
			name: "empty text",
			res:  types.Result{Kind: types.ResultText, Text: "  "},
			want: "(nothing found)\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, printResult(&buf, tt.res))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestSpokenText(t *testing.T) {
	assert.Equal(t, "chair 2m, door", spokenText(types.Result{
		Kind:    types.ResultDetection,
		Objects: []types.Object{{Label: "chair", Distance: "2m"}, {Label: "door"}},
	}))
	assert.Equal(t, "STOP", spokenText(types.Result{Kind: types.ResultText, Text: " STOP\n"}))
	assert.Equal(t, "", spokenText(types.Result{Kind: types.ResultDetection}))
	assert.Equal(t, "", spokenText(types.Result{Kind: types.ResultDetection, Summary: "nothing in view"}))
}
