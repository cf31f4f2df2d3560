package jobqueue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	base := 2 * time.Second
	assert.Equal(t, 2*time.Second, Backoff(base, 1))
	assert.Equal(t, 4*time.Second, Backoff(base, 2))
	assert.Equal(t, 8*time.Second, Backoff(base, 3))
	assert.Equal(t, 2*time.Second, Backoff(base, 0))
}

func TestPermanent(t *testing.T) {
	cause := errors.New("bad payload")
	err := Permanent(cause)

	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsPermanent(cause))
	assert.Nil(t, Permanent(nil))
}

func TestJobIsRetryable(t *testing.T) {
	job := &Job{Attempts: 1, MaxAttempts: 3}
	assert.True(t, job.IsRetryable(errors.New("boom")))
	assert.False(t, job.IsRetryable(Permanent(errors.New("boom"))))

	job.Attempts = 3
	assert.False(t, job.IsRetryable(errors.New("boom")))
}
