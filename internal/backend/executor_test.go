package backend

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	err      error
	name     string
	stdin    string
	args     []string
	deadline bool
}

func (r *recordingRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, []byte, error) {
	r.name = name
	r.args = args
	_, r.deadline = ctx.Deadline()
	if stdin != nil {
		b, _ := io.ReadAll(stdin)
		r.stdin = string(b)
	}
	return []byte("out"), []byte("err"), r.err
}

func TestExecutor_Execute(t *testing.T) {
	runner := &recordingRunner{}
	e := NewExecutorWithRunner("/opt/piper", time.Second, runner)

	stdout, stderr, err := e.Execute(context.Background(), []string{"--model", "m.onnx"}, strings.NewReader("bonjour"))
	require.NoError(t, err)

	assert.Equal(t, "out", string(stdout))
	assert.Equal(t, "err", string(stderr))
	assert.Equal(t, "/opt/piper", runner.name)
	assert.Equal(t, []string{"--model", "m.onnx"}, runner.args)
	assert.Equal(t, "bonjour", runner.stdin)
	assert.True(t, runner.deadline)
	assert.Equal(t, "/opt/piper", e.BinaryPath())
}

func TestExecutor_NoTimeout(t *testing.T) {
	runner := &recordingRunner{}
	e := NewExecutorWithRunner("/opt/llama-cli", 0, runner)

	_, _, err := e.Execute(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.False(t, runner.deadline)
}

func TestExecutor_CanceledContextIsReported(t *testing.T) {
	runner := &recordingRunner{err: errors.New("signal: killed")}
	e := NewExecutorWithRunner("/opt/llama-cli", time.Minute, runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := e.Execute(ctx, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewExecutor_BinaryChecks(t *testing.T) {
	_, err := NewExecutor(filepath.Join(t.TempDir(), "missing"), time.Second)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = NewExecutor(t.TempDir(), time.Second)
	assert.Error(t, err)

	bin := filepath.Join(t.TempDir(), "piper")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))
	e, err := NewExecutor(bin, time.Second)
	require.NoError(t, err)
	assert.Equal(t, bin, e.BinaryPath())
}
