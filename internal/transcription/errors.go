package transcription

import "errors"

var (
	// ErrPlanning means the window geometry is invalid
	ErrPlanning = errors.New("invalid window plan")
	// ErrTranscriptionTimeout means every attempt ran out of time
	ErrTranscriptionTimeout = errors.New("transcription timed out")
	// ErrTranscriptionService means the service kept failing
	ErrTranscriptionService = errors.New("transcription service error")
	// ErrMissingAPIKey means the client has no credentials. It is never retried.
	ErrMissingAPIKey = errors.New("OpenAI API key is required for transcription")
	// ErrMergeInconsistency means window transcripts cannot be laid out on one timeline
	ErrMergeInconsistency = errors.New("inconsistent window transcripts")
	// ErrNoUsableWindows means windows were attempted but none produced a transcript
	ErrNoUsableWindows = errors.New("no window could be transcribed")
	// ErrWindowTooLarge means an exported window exceeds the upload limit of the service
	ErrWindowTooLarge = errors.New("window exceeds service size limit")
)
