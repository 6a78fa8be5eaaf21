// Package swarmerr defines the cross-cutting error taxonomy every role
// reports through: registry conflicts, transport failures, integrity
// mismatches, resource exhaustion, and cancellation. Callers match these
// with errors.Is/errors.As instead of comparing strings.
package swarmerr

import "errors"

// ErrConfig reports a malformed or unusable runtime configuration,
// caught before any network activity starts.
var ErrConfig = errors.New("swarmerr: invalid configuration")

// REGISTRY errors: surfaced to the requester as CONTROL/ERROR.
var (
	ErrChunkCountConflict = errors.New("swarmerr: chunk_count conflict")
	ErrUnknownFile        = errors.New("swarmerr: unknown file")
)

// TRANSPORT errors: retried by the leecher against an alternate seeder;
// surfaced to the caller only once the retry budget is exhausted.
var (
	ErrConnectFailed = errors.New("swarmerr: connect failed")
	ErrReadTimeout   = errors.New("swarmerr: read timeout")
	ErrShortRead     = errors.New("swarmerr: short read")
	ErrReset         = errors.New("swarmerr: connection reset")
)

// INTEGRITY errors: chunk-level mismatches trigger a retry; a file-level
// mismatch aborts the download and deletes the partial file.
var (
	ErrChunkHashMismatch = errors.New("swarmerr: chunk hash mismatch")
	ErrFileHashMismatch  = errors.New("swarmerr: file hash mismatch")
)

// RESOURCE errors: fatal for the current download; reported upward.
var (
	ErrNoSeeders   = errors.New("swarmerr: no seeders")
	ErrFailedChunk = errors.New("swarmerr: failed chunk")
	ErrFailedFile  = errors.New("swarmerr: failed file")
)

// ErrCancelled is not an error in the ordinary sense — it is reported
// distinctly so a caller can suppress failure messaging for it.
var ErrCancelled = errors.New("swarmerr: cancelled")

// ExitCode maps an error returned from the core down to the exit code a
// thin CLI collaborator should use (spec §6). Unrecognised errors map to 1.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrCancelled):
		return 130
	case errors.Is(err, ErrConfig):
		return 2
	case errors.Is(err, ErrNoSeeders):
		return 4
	case errors.Is(err, ErrChunkHashMismatch), errors.Is(err, ErrFileHashMismatch),
		errors.Is(err, ErrFailedChunk), errors.Is(err, ErrFailedFile):
		return 5
	case errors.Is(err, ErrConnectFailed), errors.Is(err, ErrReadTimeout), errors.Is(err, ErrReset):
		return 3
	default:
		return 1
	}
}
