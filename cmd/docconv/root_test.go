package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ah-its-andy/docconv/internal/config"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.md"))
	touch(t, filepath.Join(dir, "b.docx"))
	touch(t, filepath.Join(dir, "notes.unknownext"))
	touch(t, filepath.Join(dir, "sub", "c.md"))

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "glob",
			args: []string{filepath.Join(dir, "*.md")},
			want: []string{filepath.Join(dir, "a.md")},
		},
		{
			name: "directory keeps known formats one level deep",
			args: []string{dir},
			want: []string{filepath.Join(dir, "a.md"), filepath.Join(dir, "b.docx")},
		},
		{
			name: "duplicates collapse",
			args: []string{filepath.Join(dir, "a.md"), filepath.Join(dir, "*.md")},
			want: []string{filepath.Join(dir, "a.md")},
		},
		{
			name: "missing file is passed through",
			args: []string{filepath.Join(dir, "missing.pdf")},
			want: []string{filepath.Join(dir, "missing.pdf")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandInputs(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandInputsEmptyDir(t *testing.T) {
	_, err := expandInputs([]string{t.TempDir()})
	assert.EqualError(t, err, "no input files")
}

func TestExpandInputsBadPattern(t *testing.T) {
	_, err := expandInputs([]string{"[z-a"})
	assert.Error(t, err)
}

func TestInitIsolation(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DOCCONV_ISOLATION", "")
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"process by default", nil, config.IsolationProcess},
		{"inprocess on request", []string{"--isolation", "inprocess"}, config.IsolationInProcess},
		{"process explicitly", []string{"--isolation", "process"}, config.IsolationProcess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &app{flags: &rootFlags{}}
			cmd := a.rootCmd()
			require.NoError(t, cmd.ParseFlags(tt.args))
			require.NoError(t, a.init(cmd))
			assert.Equal(t, tt.want, a.cfg.Isolation)
			_, err := a.runnerFactory()
			require.NoError(t, err)
		})
	}
}
