package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/config"
)

func whisperModel() *config.ModelConfig {
	m := &config.ModelConfig{Type: "stt", Backend: "whisper.cpp"}
	m.SetHuggingFaceSource(config.HuggingFaceSource{
		Repo:    "ggerganov/whisper.cpp",
		Include: []string{"ggml-base.bin"},
	})
	return m
}

func TestHuggingFaceDownloader_DownloadsAndReusesMarker(t *testing.T) {
	dir := t.TempDir()
	var calls [][]string

	d := NewHuggingFaceDownloaderWithCommand(func(_ context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, append([]string{name}, args...))
		return []byte("ok"), nil
	})

	path, cached, err := d.Download(context.Background(), whisperModel(), dir)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, filepath.Join(dir, "ggerganov/whisper.cpp"), path)
	require.Len(t, calls, 1)
	assert.Equal(t, []string{
		"hf", "download", "ggerganov/whisper.cpp", "--local-dir", path, "--include", "ggml-base.bin",
	}, calls[0])

	_, err = os.Stat(filepath.Join(path, markerFilename))
	require.NoError(t, err)

	path2, cached, err := d.Download(context.Background(), whisperModel(), dir)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, path, path2)
	assert.Len(t, calls, 1, "marker match must skip the download")
}

func TestHuggingFaceDownloader_RetriesThenFails(t *testing.T) {
	attempts := 0
	d := NewHuggingFaceDownloaderWithCommand(func(context.Context, string, ...string) ([]byte, error) {
		attempts++
		return []byte("401 unauthorized"), errors.New("exit status 1")
	})

	_, _, err := d.Download(context.Background(), whisperModel(), t.TempDir())
	require.Error(t, err)
	assert.Equal(t, defaultMaxRetries, attempts)
	assert.Contains(t, err.Error(), "exit status 1")
}

func TestHuggingFaceDownloader_NoSource(t *testing.T) {
	d := NewHuggingFaceDownloader()
	_, _, err := d.Download(context.Background(), &config.ModelConfig{Backend: "openai"}, t.TempDir())
	assert.ErrorIs(t, err, config.ErrNoSource)
}

func TestGetDownloader(t *testing.T) {
	d, err := GetDownloader(context.Background(), config.SourceTypeHuggingFace)
	require.NoError(t, err)
	assert.IsType(t, &HuggingFaceDownloader{}, d)

	_, err = GetDownloader(context.Background(), "s3")
	assert.ErrorIs(t, err, ErrUnsupportedSource)
}

func TestEnsureModelsDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureModelsDirectory(dir))
	require.NoError(t, EnsureModelsDirectory(dir))

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.Error(t, EnsureModelsDirectory(file))
}
