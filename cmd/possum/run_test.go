package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, dir string, args ...string) (string, string, int) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	full := append([]string{"possum", "--dir", dir}, args...)
	code := Run(nil, &stdout, &stderr, full, nil, nil)

	return stdout.String(), stderr.String(), code
}

func Test_Run_NoArgs_Prints_Usage(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := Run(nil, &stdout, &stderr, []string{"possum"}, nil, nil)

	require.Zero(t, code)
	require.Empty(t, stderr.String())
	require.Contains(t, stdout.String(), "possum - a copy-on-write key/value store")
	require.Contains(t, stdout.String(), "put")
	require.Contains(t, stdout.String(), "shell")
}

func Test_Run_Unknown_Command_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, stderr, code := runCLI(t, dir, "bogus")

	require.Equal(t, 1, code)
	require.Contains(t, stderr, "unknown command")
}

func Test_Run_Put_Get_Roundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	code := Run(strings.NewReader("hello world"), &stdout, &stderr, []string{"possum", "--dir", dir, "put", "greeting"}, nil, nil)
	require.Zero(t, code, stderr.String())

	stdout.Reset()
	stderr.Reset()
	code = Run(nil, &stdout, &stderr, []string{"possum", "--dir", dir, "get", "greeting"}, nil, nil)
	require.Zero(t, code, stderr.String())
	require.Equal(t, "hello world", stdout.String())
}

func Test_Run_Get_Missing_Key_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, stderr, code := runCLI(t, dir, "get", "nope")

	require.Equal(t, 1, code)
	require.Contains(t, stderr, "no such key")
}

func Test_Run_Put_From_File(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "value.txt")
	require.NoError(t, os.WriteFile(file, []byte("from a file"), 0o600))

	stdout, stderr, code := runCLI(t, dir, "put", "k", "--file", file)
	require.Zero(t, code, stderr)
	require.Contains(t, stdout, "ok")

	stdout2, stderr2, code2 := runCLI(t, dir, "get", "k")
	require.Zero(t, code2, stderr2)
	require.Equal(t, "from a file", stdout2)
}

func Test_Run_Ls_Lists_Matching_Prefix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	for _, k := range []string{"a/1", "a/2", "b/1"} {
		var stdout, stderr bytes.Buffer
		code := Run(strings.NewReader("v"), &stdout, &stderr, []string{"possum", "--dir", dir, "put", k}, nil, nil)
		require.Zero(t, code, stderr.String())
	}

	stdout, stderr, code := runCLI(t, dir, "ls", "a/")
	require.Zero(t, code, stderr)
	require.Contains(t, stdout, "a/1")
	require.Contains(t, stdout, "a/2")
	require.NotContains(t, stdout, "b/1")
}

func Test_Run_Rm_Then_Get_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, stderr, code := runCLI(t, dir, "put", "k")
	require.Zero(t, code, stderr)

	_, stderr, code = runCLI(t, dir, "rm", "k")
	require.Zero(t, code, stderr)

	_, stderr, code = runCLI(t, dir, "get", "k")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "no such key")
}

func Test_Run_Mv_Renames_Key(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	code := Run(strings.NewReader("v"), &stdout, &stderr, []string{"possum", "--dir", dir, "put", "old"}, nil, nil)
	require.Zero(t, code, stderr.String())

	_, stderr2, code2 := runCLI(t, dir, "mv", "old", "new")
	require.Zero(t, code2, stderr2)

	stdout3, stderr3, code3 := runCLI(t, dir, "get", "new")
	require.Zero(t, code3, stderr3)
	require.Equal(t, "v", stdout3)
}

func Test_Run_Info_Reports_Block_Size(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	stdout, stderr, code := runCLI(t, dir, "info")

	require.Zero(t, code, stderr)
	require.Contains(t, stdout, "block size:")
	require.Contains(t, stdout, "block cloning:")
}

func Test_Run_Limits_Sets_Instance_Limits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	stdout, stderr, code := runCLI(t, dir, "limits", "--max-value-length-sum", "1024")

	require.Zero(t, code, stderr)
	require.Contains(t, stdout, "max-value-length-sum=1024")
}
