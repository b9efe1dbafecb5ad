package optimize

import (
	"errors"
	"fmt"
)

// Kind classifies where a pipeline run failed. Every kind is terminal for
// the run; nothing is retried except the indexing poll, which is a wait,
// not an error path.
type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindUpstreamFetch   Kind = "upstream_fetch"
	KindTranscode       Kind = "transcode"
	KindPayloadTooLarge Kind = "payload_too_large"
	KindStaging         Kind = "staging"
	KindBlobUpload      Kind = "blob_upload"
	KindFinalize        Kind = "finalize"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func errf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the pipeline kind from an error chain.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// HTTPStatus maps a run error to the response status.
func HTTPStatus(err error) int {
	kind, ok := KindOf(err)
	if !ok {
		return 500
	}
	switch kind {
	case KindNotFound:
		return 404
	case KindTranscode:
		return 422
	case KindPayloadTooLarge:
		return 413
	case KindUpstreamFetch, KindStaging, KindBlobUpload, KindFinalize:
		return 502
	default:
		return 500
	}
}
