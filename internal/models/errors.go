package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Error taxonomy for the core. Handlers translate these to HTTP codes.
var (
	// ErrNotFound indicates an unknown media file, library, or job.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates an already-running job, duplicate path, or a
	// resource already in a terminal state.
	ErrConflict = errors.New("conflict")

	// ErrInvalidArgument indicates a malformed request such as a bad byte
	// range, an invalid segment name, or an unknown filter operator.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrForbidden indicates a disabled library or a non-admin operation.
	ErrForbidden = errors.New("forbidden")

	// ErrUnavailable indicates the scheduler has not been started.
	ErrUnavailable = errors.New("unavailable")

	// ErrProbeFailed indicates the media probe binary failed or timed out.
	ErrProbeFailed = errors.New("probe failed")

	// ErrEncoderFailed indicates the encoder process failed to start or
	// exited with a non-zero status.
	ErrEncoderFailed = errors.New("encoder failed")

	// ErrCancelled indicates cooperative cancellation; not an error for the
	// job itself, but surfaced to callers awaiting a result.
	ErrCancelled = errors.New("cancellation requested")

	// ErrTimeout indicates an external process exceeded its wall-clock budget.
	ErrTimeout = errors.New("timeout")
)

// Model validation sentinels.
var (
	// ErrNameRequired indicates a required name field is empty.
	ErrNameRequired = errors.New("name is required")

	// ErrPathRequired indicates a required path field is empty.
	ErrPathRequired = errors.New("path is required")

	// ErrFilePathRequired indicates a required file path field is empty.
	ErrFilePathRequired = errors.New("file_path is required")

	// ErrUsernameRequired indicates a required username field is empty.
	ErrUsernameRequired = errors.New("username is required")

	// ErrMediaFileIDRequired indicates a required media file ID is zero.
	ErrMediaFileIDRequired = errors.New("media_file_id is required")

	// ErrLibraryIDRequired indicates a required library ID is zero.
	ErrLibraryIDRequired = errors.New("library_id is required")

	// ErrInvalidLibraryType indicates an invalid library type.
	ErrInvalidLibraryType = errors.New("invalid library type: must be 'movies' or 'shows'")

	// ErrInvalidTranscodeType indicates an invalid transcoding job type.
	ErrInvalidTranscodeType = errors.New("invalid transcode type: must be 'hls', 'progressive', 'remux', or 'audio_transcode'")
)
