package service

import (
	"errors"
	"fmt"
)

// Error definitions for the service package.
var (
	ErrNoModelAssigned     = errors.New("no usable model assigned to service")
	ErrTranscriptionFailed = errors.New("transcription failed")
)

// TranscriptionError aborts the pipeline when speech could not be turned into text.
type TranscriptionError struct {
	Transcription Transcription
}

func (e *TranscriptionError) Error() string {
	if e.Transcription.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrTranscriptionFailed, e.Transcription.Status, e.Transcription.Err)
	}
	return fmt.Sprintf("%s: %s", ErrTranscriptionFailed, e.Transcription.Status)
}

func (e *TranscriptionError) Unwrap() []error {
	if e.Transcription.Err != nil {
		return []error{ErrTranscriptionFailed, e.Transcription.Err}
	}
	return []error{ErrTranscriptionFailed}
}
