package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/mainseq/ci-engine/internal/ringcentral"
	"github.com/mainseq/ci-engine/internal/securestore"
	"github.com/mainseq/ci-engine/internal/transcribe"
)

// ErrorKind classifies a stage failure per the recovery policy it gets.
type ErrorKind int

const (
	KindTransient ErrorKind = iota // retry with back-off within budget
	KindPermanent                  // fail immediately, no retry
	KindAuth                       // refresh once, then permanent
	KindCritical                   // abort the daily pass
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindAuth:
		return "auth"
	default:
		return "critical"
	}
}

// Recovery is the action the batch processor takes.
type Recovery int

const (
	RecoveryRetry Recovery = iota
	RecoveryFail
	RecoveryAbortRun
)

// StageError is the classified failure a stage worker reports upward.
type StageError struct {
	Stage    string
	Kind     ErrorKind
	Recovery Recovery
	Message  string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage %s error: %s", e.Stage, e.Kind, e.Message)
}

func (e *StageError) Unwrap() error { return e.Err }

// ClassifyStageError converts a low-level error into its StageError. The
// mapping follows the recovery policy: invalid input fails immediately,
// deletion failure aborts the run, rate limits and 5xx retry.
func ClassifyStageError(stage string, err error) *StageError {
	se := &StageError{Stage: stage, Message: err.Error(), Err: err}

	var invalid *transcribe.InvalidAudioError
	var transient *transcribe.TransientError
	var deletion *securestore.DeletionError
	var rateLimit *ringcentral.RateLimitError

	switch {
	case errors.As(err, &deletion):
		se.Kind = KindCritical
		se.Recovery = RecoveryAbortRun
	case errors.As(err, &invalid):
		se.Kind = KindPermanent
		se.Recovery = RecoveryFail
	case errors.As(err, &transient), errors.As(err, &rateLimit),
		errors.Is(err, context.DeadlineExceeded):
		se.Kind = KindTransient
		se.Recovery = RecoveryRetry
	default:
		// Unknown failures stay retryable; the retry budget bounds them.
		se.Kind = KindTransient
		se.Recovery = RecoveryRetry
	}
	return se
}
