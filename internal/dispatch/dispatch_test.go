package dispatch

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"syclopsui/internal/compiler"
	"syclopsui/internal/document"
)

type recordedStart struct {
	args []string
	dir  string
}

func fakeStarter(rec *recordedStart, pid int, err error) Starter {
	return func(cmd *exec.Cmd) (int, error) {
		rec.args = append([]string{}, cmd.Args...)
		rec.dir = cmd.Dir
		return pid, err
	}
}

func testDoc(t *testing.T) document.Document {
	t.Helper()
	doc, err := compiler.Compile(compiler.RawParameters{"steps": "2"})
	require.NoError(t, err)
	return doc
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
}

func TestDispatchDefaultMode(t *testing.T) {
	tmp := t.TempDir()
	var rec recordedStart
	d := New(Config{
		Executable:    "python3",
		Args:          []string{"/opt/syclops/cli.py"},
		InstallFolder: "/data/syclops",
		WorkDir:       "/opt/syclops",
		TempDir:       tmp,
	}, WithStarter(fakeStarter(&rec, 4242, nil)), WithClock(fixedClock))

	out := d.Dispatch(context.Background(), testDoc(t), ModeNone)
	require.True(t, out.Success)
	require.NoError(t, out.Err)
	require.NotEmpty(t, out.JobID)
	require.Equal(t, 4242, out.ProcessID)
	require.Equal(t, "2024_05_06_07_08_09", out.Timestamp)
	require.Equal(t, ModeNone, out.DebugMode)
	require.Contains(t, out.Note, "background")
	require.Equal(t, "/opt/syclops", rec.dir)

	require.Equal(t, filepath.Dir(out.ConfigFile), tmp)
	require.True(t, strings.HasSuffix(out.ConfigFile, ".syclops.yaml"))
	require.Equal(t, []string{
		"python3", "/opt/syclops/cli.py",
		"--job-description", out.ConfigFile,
		"--install-folder", "/data/syclops",
	}, rec.args)
	require.Equal(t, strings.Join(rec.args, " "), out.Command)

	data, err := os.ReadFile(out.ConfigFile)
	require.NoError(t, err)
	parsed, err := document.Parse(data)
	require.NoError(t, err)
	require.Equal(t, 2, parsed.Steps)
}

func TestDispatchDebugModes(t *testing.T) {
	cases := []struct {
		mode        Mode
		wantMessage string
		wantNote    string
	}{
		{ModeScene, "inspect the scene", "inspect and modify"},
		{ModeBlenderCode, "blender-code debug mode", "debugger attachment"},
		{ModePipelineCode, "pipeline-code debug mode", "debugger attachment"},
	}
	for _, tc := range cases {
		t.Run(string(tc.mode), func(t *testing.T) {
			var rec recordedStart
			d := New(Config{Executable: "syclops", InstallFolder: "/i", TempDir: t.TempDir()},
				WithStarter(fakeStarter(&rec, 1, nil)))
			out := d.Dispatch(context.Background(), testDoc(t), tc.mode)
			require.True(t, out.Success)
			require.Contains(t, out.Message, tc.wantMessage)
			require.Contains(t, out.Note, tc.wantNote)
			require.Equal(t, tc.mode, out.DebugMode)
			require.Equal(t, []string{"--debug", string(tc.mode)}, rec.args[len(rec.args)-2:])
		})
	}
}

func TestDispatchStartFailure(t *testing.T) {
	tmp := t.TempDir()
	var rec recordedStart
	d := New(Config{Executable: "syclops", TempDir: tmp},
		WithStarter(fakeStarter(&rec, 0, errors.New("exec: not found"))))
	out := d.Dispatch(context.Background(), testDoc(t), ModeNone)
	require.False(t, out.Success)
	require.ErrorIs(t, out.Err, ErrDispatch)
	require.Contains(t, out.Error, "not found")
	require.Zero(t, out.ProcessID)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	require.Empty(t, entries, "job file should be removed when the pipeline cannot start")
}

func TestDispatchArtifactFailure(t *testing.T) {
	called := false
	d := New(Config{Executable: "syclops", TempDir: filepath.Join(t.TempDir(), "missing", "dir")},
		WithStarter(func(*exec.Cmd) (int, error) { called = true; return 1, nil }))
	out := d.Dispatch(context.Background(), testDoc(t), ModeScene)
	require.False(t, out.Success)
	require.ErrorIs(t, out.Err, ErrDispatch)
	require.Contains(t, out.Error, "write job description")
	require.False(t, called)
}

func TestDispatchRealProcess(t *testing.T) {
	bin, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true not available")
	}
	d := New(Config{Executable: bin, InstallFolder: t.TempDir(), TempDir: t.TempDir()})
	out := d.Dispatch(context.Background(), testDoc(t), ModeNone)
	require.True(t, out.Success, out.Error)
	require.Positive(t, out.ProcessID)
}

func TestDispatchMissingExecutable(t *testing.T) {
	d := New(Config{Executable: filepath.Join(t.TempDir(), "no-such-pipeline"), TempDir: t.TempDir()})
	out := d.Dispatch(context.Background(), testDoc(t), ModeNone)
	require.False(t, out.Success)
	require.ErrorIs(t, out.Err, ErrDispatch)
}

func TestConcurrentDispatchesUseSeparateFiles(t *testing.T) {
	d := New(Config{Executable: "syclops", TempDir: t.TempDir()},
		WithStarter(func(*exec.Cmd) (int, error) { return 7, nil }))
	doc := testDoc(t)
	results := make(chan Outcome, 8)
	for i := 0; i < 8; i++ {
		go func() { results <- d.Dispatch(context.Background(), doc, ModeNone) }()
	}
	seen := map[string]bool{}
	ids := map[string]bool{}
	for i := 0; i < 8; i++ {
		out := <-results
		require.True(t, out.Success)
		require.False(t, seen[out.ConfigFile])
		require.False(t, ids[out.JobID])
		seen[out.ConfigFile] = true
		ids[out.JobID] = true
	}
}

func TestDispatchUnknownModeRunsWithoutDebug(t *testing.T) {
	for _, mode := range []Mode{"verbose", "--rm", "SCENE "} {
		t.Run(string(mode), func(t *testing.T) {
			var rec recordedStart
			d := New(Config{Executable: "syclops", InstallFolder: "/i", TempDir: t.TempDir()},
				WithStarter(fakeStarter(&rec, 1, nil)))
			out := d.Dispatch(context.Background(), testDoc(t), mode)
			require.True(t, out.Success)
			want, ok := ParseMode(string(mode))
			if !ok {
				require.Equal(t, ModeNone, out.DebugMode)
				require.NotContains(t, rec.args, "--debug")
				require.NotContains(t, rec.args, string(mode))
				return
			}
			require.Equal(t, want, out.DebugMode)
			require.Equal(t, []string{"--debug", string(want)}, rec.args[len(rec.args)-2:])
		})
	}
}

func TestArgvIgnoresUnknownMode(t *testing.T) {
	d := New(Config{Executable: "syclops", InstallFolder: "/i"})
	require.Equal(t,
		[]string{"syclops", "--job-description", "job.yaml", "--install-folder", "/i"},
		d.Argv("job.yaml", Mode("bogus")))
}

func TestParseMode(t *testing.T) {
	cases := map[string]struct {
		want Mode
		ok   bool
	}{
		"":              {ModeNone, true},
		"none":          {ModeNone, true},
		"Scene":         {ModeScene, true},
		"blender-code":  {ModeBlenderCode, true},
		"pipeline-code": {ModePipelineCode, true},
		"verbose":       {ModeNone, false},
	}
	for in, tc := range cases {
		got, ok := ParseMode(in)
		require.Equal(t, tc.want, got, in)
		require.Equal(t, tc.ok, ok, in)
	}
}

func TestLauncher(t *testing.T) {
	_, err := Launcher{}.Launch(context.Background())
	require.ErrorIs(t, err, ErrNoLauncher)

	var rec recordedStart
	pid, err := Launcher{Command: []string{"python3", "-m", "browser"}, Start: fakeStarter(&rec, 99, nil)}.Launch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 99, pid)
	require.Equal(t, []string{"python3", "-m", "browser"}, rec.args)

	_, err = Launcher{Command: []string{"x"}, Start: fakeStarter(&rec, 0, errors.New("boom"))}.Launch(context.Background())
	require.ErrorContains(t, err, "failed to launch asset browser")
}
