package gtts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/mapsafe"
)

const (
	DefaultBaseURL = "https://translate.google.com"
	defaultTimeout = 30 * time.Second

	// MaxChunkRunes is the longest text the endpoint accepts per call.
	MaxChunkRunes = 100
)

// Backend implements backend.Backend for the Google Translate TTS endpoint.
type Backend struct {
	client  *http.Client
	baseURL string
}

// NewBackend creates a new Google TTS backend.
func NewBackend(baseURL string, timeout time.Duration) *Backend {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Backend{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Provider implements backend.Backend.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderGTTS
}

// Tasks implements backend.Backend.
func (b *Backend) Tasks() []backend.Task {
	return []backend.Task{backend.TaskSynthesize}
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

// Infer implements backend.Backend.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	if req.Task != backend.TaskSynthesize {
		return nil, fmt.Errorf("%w: %s cannot %s", backend.ErrUnsupportedTask, b.Provider(), req.Task)
	}

	text, err := io.ReadAll(req.Input)
	if err != nil {
		return nil, fmt.Errorf("gtts: read input: %w", err)
	}

	lang := mapsafe.Get(req.Parameters, backend.ParamLanguage, "en")
	chunks := SplitText(string(text), MaxChunkRunes)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("gtts: no text to speak")
	}

	start := time.Now()
	var audio bytes.Buffer
	for i, chunk := range chunks {
		if err := b.fetch(ctx, &audio, chunk, lang, i, len(chunks)); err != nil {
			return nil, fmt.Errorf("gtts: chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	if audio.Len() == 0 {
		return nil, backend.ErrEmptyOutput
	}

	return &backend.Response{
		Output: bytes.NewReader(audio.Bytes()),
		Metadata: &backend.ResponseMetadata{
			Provider:        b.Provider(),
			Model:           req.ModelPath,
			Format:          "mp3",
			Timestamp:       time.Now(),
			DurationSeconds: time.Since(start).Seconds(),
			OutputBytes:     int64(audio.Len()),
			BackendSpecific: map[string]any{"chunks": len(chunks)},
		},
	}, nil
}

func (b *Backend) fetch(ctx context.Context, dst io.Writer, text, lang string, idx, total int) error {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("q", text)
	q.Set("tl", lang)
	q.Set("total", fmt.Sprint(total))
	q.Set("idx", fmt.Sprint(idx))
	q.Set("textlen", fmt.Sprint(utf8.RuneCountInString(text)))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/translate_tts?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("User-Agent", "Mozilla/5.0")
	httpReq.Header.Set("Referer", b.baseURL+"/")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	_, err = io.Copy(dst, resp.Body)
	return err
}

// SplitText breaks text into chunks of at most limit runes, preferring
// sentence punctuation, then whitespace, then a hard cut.
func SplitText(text string, limit int) []string {
	var chunks []string
	rest := []rune(strings.TrimSpace(text))

	for len(rest) > 0 {
		if len(rest) <= limit {
			chunks = append(chunks, string(rest))
			break
		}

		cut := lastIndexFunc(rest[:limit+1], isSentenceBreak)
		if cut <= 0 {
			cut = lastIndexFunc(rest[:limit+1], unicode.IsSpace)
		}
		if cut <= 0 {
			cut = limit
		} else if isSentenceBreak(rest[cut]) {
			cut++
		}
		if cut > limit {
			cut = limit
		}

		if chunk := strings.TrimSpace(string(rest[:cut])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		rest = []rune(strings.TrimSpace(string(rest[cut:])))
	}

	return chunks
}

func lastIndexFunc(rs []rune, f func(rune) bool) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if f(rs[i]) {
			return i
		}
	}
	return -1
}

func isSentenceBreak(r rune) bool {
	switch r {
	case '.', '!', '?', ';', ',', ':', '。', '！', '？', '、', '，':
		return true
	}
	return false
}
