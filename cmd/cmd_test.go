package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portalsim/engine/internal/auth"
	"portalsim/engine/internal/config"
)

// runCLI executes a fresh root command with args and returns everything it printed.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("PORTALSIM_LOGGING_PATH", filepath.Join(t.TempDir(), "portalsim.log"))
	root, _ := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)

	out, err = runCLI(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}

func TestCheckLevelDescribesBuiltInRoom(t *testing.T) {
	out, err := runCLI(t, "check-level")
	require.NoError(t, err)
	assert.Contains(t, out, "level built-in")
	assert.Contains(t, out, "walls 10")
	assert.Contains(t, out, "orange portal at")
	assert.Contains(t, out, "blue portal at")
	assert.Contains(t, out, "iteration budget orange 1 blue 1")
}

func TestCheckLevelRejectsMissingFile(t *testing.T) {
	_, err := runCLI(t, "check-level", filepath.Join(t.TempDir(), "missing.level"))
	assert.Error(t, err)
}

func TestSimulatePrintsSnapshots(t *testing.T) {
	out, err := runCLI(t, "simulate", "--steps", "3", "--every", "2", "--forward", "1", "--camera", "right")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var ticks []float64
	for _, line := range lines {
		var doc map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &doc))
		ticks = append(ticks, doc["tick"].(float64))
		assert.Equal(t, "right", doc["active_camera"])
	}
	assert.Equal(t, []float64{2, 3}, ticks)
}

func TestSimulateRejectsBadArguments(t *testing.T) {
	_, err := runCLI(t, "simulate", "--camera", "sideways")
	assert.ErrorContains(t, err, "unknown camera")

	_, err = runCLI(t, "simulate", "--portal", "green")
	assert.ErrorContains(t, err, "unknown portal")

	_, err = runCLI(t, "simulate", "--steps", "0")
	assert.ErrorContains(t, err, "--steps")
}

func TestConfigFileIsValidated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portalsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("stream:\n  codec: brotli\n"), 0o600))

	_, err := runCLI(t, "--config", path, "check-level")
	assert.ErrorContains(t, err, "invalid configuration")
}

func sessionDirs(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	return dirs
}

func TestRecordedSessionReplaysAndVerifies(t *testing.T) {
	root := t.TempDir()
	_, err := runCLI(t, "simulate", "--steps", "30", "--every", "30", "--forward", "1", "--right", "0.5",
		"--yaw", "0.3", "--camera", "right", "--record", root)
	require.NoError(t, err)

	dirs := sessionDirs(t, root)
	require.Len(t, dirs, 1)

	//1.- Summary.
	out, err := runCLI(t, "replay", dirs[0])
	require.NoError(t, err)
	assert.Contains(t, out, "level built-in")
	assert.Contains(t, out, "controls 1")
	assert.Contains(t, out, "frames 30 ticks 1..30")

	//2.- Every frame is printed.
	out, err = runCLI(t, "replay", "--frames", dirs[0])
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 30)

	//3.- A re-run reproduces the recording.
	out, err = runCLI(t, "replay", "--verify", dirs[0])
	require.NoError(t, err)
	assert.Equal(t, "verified 30 frames\n", out)
}

func TestRecordingRetention(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 3; i++ {
		_, err := runCLI(t, "simulate", "--steps", "2", "--record", root, "--keep", "1")
		require.NoError(t, err)
	}
	assert.Len(t, sessionDirs(t, root), 1)
}

func TestReplayRejectsMissingSession(t *testing.T) {
	_, err := runCLI(t, "replay", filepath.Join(t.TempDir(), "nothing"))
	assert.ErrorContains(t, err, "open session")
}

func TestTuningParametersRoundTrip(t *testing.T) {
	want := config.DefaultTuning
	want.MoveSpeed = 7.5
	got := tuningFromParameters(tuningParameters(want), config.TuningConfig{})
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("tuning mismatch (-want +got):\n%s", diff)
	}

	partial := tuningFromParameters(map[string]float64{"roll_speed_deg": 90}, config.DefaultTuning)
	expected := config.DefaultTuning
	expected.RollSpeedDeg = 90
	assert.Empty(t, cmp.Diff(expected, partial))
}

func TestDiffDocumentsToleratesFloatNoise(t *testing.T) {
	diff, err := diffDocuments([]byte(`{"x":1.0,"m":null}`), []byte(`{"x":1.000000001,"m":null}`))
	require.NoError(t, err)
	assert.Empty(t, diff)

	diff, err = diffDocuments([]byte(`{"x":1.0}`), []byte(`{"x":1.5}`))
	require.NoError(t, err)
	assert.NotEmpty(t, diff)

	_, err = diffDocuments([]byte(`{`), []byte(`{}`))
	assert.Error(t, err)
}

func TestTokenIsVerifiableWithConfiguredSecret(t *testing.T) {
	t.Setenv("PORTALSIM_STREAM_AUTH_SECRET", "stream-secret")
	out, err := runCLI(t, "token", "--subject", "wall-display", "--ttl", "1h")
	require.NoError(t, err)

	verifier, err := auth.NewTokenVerifier("stream-secret", 0)
	require.NoError(t, err)
	claims, err := verifier.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "wall-display", claims.Subject)
}

func TestTokenRequiresSecret(t *testing.T) {
	_, err := runCLI(t, "token")
	assert.ErrorContains(t, err, "auth_secret")
}
