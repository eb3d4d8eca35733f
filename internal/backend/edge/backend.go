package edge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	edge_tts "github.com/wujunwei928/edge-tts-go/edge_tts"

	"github.com/thisisisheanesu/seamlessm4tserver/internal/backend"
	"github.com/thisisisheanesu/seamlessm4tserver/internal/mapsafe"
)

const fallbackVoice = "en-US-AriaNeural"

// defaultVoices maps a base language code to a neural voice.
var defaultVoices = map[string]string{
	"ar": "ar-SA-HamedNeural",
	"de": "de-DE-KatjaNeural",
	"en": "en-US-AriaNeural",
	"es": "es-ES-ElviraNeural",
	"fr": "fr-FR-DeniseNeural",
	"hi": "hi-IN-SwaraNeural",
	"it": "it-IT-ElsaNeural",
	"ja": "ja-JP-NanamiNeural",
	"ko": "ko-KR-SunHiNeural",
	"nl": "nl-NL-ColetteNeural",
	"pt": "pt-BR-FranciscaNeural",
	"ru": "ru-RU-SvetlanaNeural",
	"sw": "sw-KE-ZuriNeural",
	"tr": "tr-TR-EmelNeural",
	"zh": "zh-CN-XiaoxiaoNeural",
}

// SpeakFunc turns text into MP3 audio with the given voice and rate
// (e.g. "+10%", empty for the default).
type SpeakFunc func(voice, rate, text string) ([]byte, error)

// Backend implements backend.Backend for Microsoft Edge online TTS.
type Backend struct {
	speak  SpeakFunc
	voices map[string]string
}

// NewBackend creates a new Edge TTS backend. voices overrides the
// built-in language to voice mapping.
func NewBackend(voices map[string]string) *Backend {
	return NewBackendWithSpeaker(speak, voices)
}

// NewBackendWithSpeaker creates a backend using a custom speaker.
func NewBackendWithSpeaker(fn SpeakFunc, voices map[string]string) *Backend {
	merged := make(map[string]string, len(defaultVoices)+len(voices))
	for k, v := range defaultVoices {
		merged[k] = v
	}
	for k, v := range voices {
		merged[strings.ToLower(k)] = v
	}

	return &Backend{speak: fn, voices: merged}
}

// NewCommunicate prepares a synthesis session for text. An empty rate keeps
// the service default.
func NewCommunicate(voice, rate, text string) (*edge_tts.Communicate, error) {
	opts := []edge_tts.CommunicateOption{edge_tts.SetVoice(voice)}
	if rate != "" {
		opts = append(opts, edge_tts.SetRate(rate))
	}
	return edge_tts.NewCommunicate(text, opts...)
}

func speak(voice, rate, text string) ([]byte, error) {
	communicate, err := NewCommunicate(voice, rate, text)
	if err != nil {
		return nil, fmt.Errorf("create communicator: %w", err)
	}
	return communicate.Stream()
}

// Provider implements backend.Backend.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderEdge
}

// Tasks implements backend.Backend.
func (b *Backend) Tasks() []backend.Task {
	return []backend.Task{backend.TaskSynthesize}
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	return nil
}

// Voice picks the voice for a language: exact code first, then the base
// language, then the fallback.
func (b *Backend) Voice(lang string) string {
	lang = strings.ToLower(lang)
	if v, ok := b.voices[lang]; ok {
		return v
	}
	if base, _, ok := strings.Cut(lang, "-"); ok {
		if v, ok := b.voices[base]; ok {
			return v
		}
	}
	return fallbackVoice
}

// Infer implements backend.Backend.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	if req.Task != backend.TaskSynthesize {
		return nil, fmt.Errorf("%w: %s cannot %s", backend.ErrUnsupportedTask, b.Provider(), req.Task)
	}

	text, err := io.ReadAll(req.Input)
	if err != nil {
		return nil, fmt.Errorf("edge: read input: %w", err)
	}

	voice := mapsafe.Get(req.Parameters, "voice", "")
	if voice == "" {
		voice = b.Voice(mapsafe.Get(req.Parameters, backend.ParamLanguage, ""))
	}

	rate := mapsafe.Get(req.Parameters, "rate", "")

	type result struct {
		audio []byte
		err   error
	}

	start := time.Now()
	done := make(chan result, 1)
	go func() {
		audio, err := b.speak(voice, rate, string(text))
		done <- result{audio, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("edge: synthesis cancelled: %w", ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return nil, fmt.Errorf("edge: synthesis failed: %w", res.err)
	}
	if len(res.audio) == 0 {
		return nil, backend.ErrEmptyOutput
	}

	return &backend.Response{
		Output: bytes.NewReader(res.audio),
		Metadata: &backend.ResponseMetadata{
			Provider:        b.Provider(),
			Model:           voice,
			Format:          "mp3",
			Timestamp:       time.Now(),
			DurationSeconds: time.Since(start).Seconds(),
			OutputBytes:     int64(len(res.audio)),
		},
	}, nil
}
