package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mainseq/ci-engine/internal/ringcentral"
	"github.com/mainseq/ci-engine/internal/securestore"
	"github.com/mainseq/ci-engine/internal/transcribe"
)

func TestClassifyStageError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     ErrorKind
		recovery Recovery
	}{
		{
			"invalid_audio_is_permanent",
			&transcribe.InvalidAudioError{Reason: "file too large"},
			KindPermanent, RecoveryFail,
		},
		{
			"transient_5xx_retries",
			&transcribe.TransientError{Op: "submit", Status: 502},
			KindTransient, RecoveryRetry,
		},
		{
			"rate_limit_retries",
			&ringcentral.RateLimitError{RetryAfter: 30 * time.Second},
			KindTransient, RecoveryRetry,
		},
		{
			"deletion_failure_aborts_run",
			&securestore.DeletionError{Path: "/data/audio_queue/REC-1.mp3"},
			KindCritical, RecoveryAbortRun,
		},
		{
			"deadline_retries",
			context.DeadlineExceeded,
			KindTransient, RecoveryRetry,
		},
		{
			"unknown_stays_retryable",
			errors.New("something odd"),
			KindTransient, RecoveryRetry,
		},
		{
			"wrapped_errors_unwrap",
			fmt.Errorf("upload: %w", &securestore.DeletionError{Path: "/x"}),
			KindCritical, RecoveryAbortRun,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := ClassifyStageError("upload", tt.err)
			if se.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", se.Kind, tt.kind)
			}
			if se.Recovery != tt.recovery {
				t.Errorf("recovery = %v, want %v", se.Recovery, tt.recovery)
			}
			if !errors.Is(se, tt.err) && se.Err != tt.err {
				t.Error("StageError should wrap the cause")
			}
		})
	}
}
