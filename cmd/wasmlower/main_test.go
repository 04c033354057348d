package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// emptyModule is the smallest legal wasm binary: just the magic number and
// version, no sections at all.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestDoMainWithNoArgsPrintsUsage(t *testing.T) {
	os.Args = []string{"wasmlower"}
	var stdOut, stdErr bytes.Buffer
	rc := doMain(&stdOut, &stdErr)
	require.Equal(t, 1, rc)
	require.Contains(t, stdErr.String(), "Usage")
}

func TestDoMainVersion(t *testing.T) {
	os.Args = []string{"wasmlower", "version"}
	var stdOut, stdErr bytes.Buffer
	rc := doMain(&stdOut, &stdErr)
	require.Equal(t, 0, rc)
	require.Contains(t, stdOut.String(), "wasmlower")
}

func TestDoMainInvalidCommand(t *testing.T) {
	os.Args = []string{"wasmlower", "bogus"}
	var stdOut, stdErr bytes.Buffer
	rc := doMain(&stdOut, &stdErr)
	require.Equal(t, 1, rc)
	require.Contains(t, stdErr.String(), "invalid command")
}

func TestDoLowerMissingPath(t *testing.T) {
	var stdOut, stdErr bytes.Buffer
	rc := doLower(nil, &stdOut, &stdErr)
	require.Equal(t, 1, rc)
	require.Contains(t, stdErr.String(), "missing path")
}

func TestDoLowerOnAnEmptyModuleSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.wasm")
	require.NoError(t, os.WriteFile(path, emptyModule, 0o644))

	var stdOut, stdErr bytes.Buffer
	rc := doLower([]string{path}, &stdOut, &stdErr)
	require.Equal(t, 0, rc)
}

func TestDoLowerOnAMissingFileFails(t *testing.T) {
	var stdOut, stdErr bytes.Buffer
	rc := doLower([]string{filepath.Join(t.TempDir(), "missing.wasm")}, &stdOut, &stdErr)
	require.Equal(t, 1, rc)
}
