package source

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/config"
)

// ErrUnsupportedSource is returned when no downloader exists for a source type.
var ErrUnsupportedSource = errors.New("unsupported model source")

// Downloader fetches a model into a local directory.
type Downloader interface {
	// Download places the model under targetDir and returns its local path and
	// whether a previous download was reused.
	Download(ctx context.Context, modelConfig *config.ModelConfig, targetDir string) (string, bool, error)
}

// GetDownloader returns the downloader for a source type.
func GetDownloader(_ context.Context, sourceType config.SourceType) (Downloader, error) {
	switch sourceType {
	case config.SourceTypeHuggingFace:
		return NewHuggingFaceDownloader(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, sourceType)
	}
}

// EnsureModelsDirectory creates the models directory if needed.
func EnsureModelsDirectory(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("models path %s is not a directory", path)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return os.MkdirAll(path, 0o755)
}
