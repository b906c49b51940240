package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GameHarvester/internal/domain"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func testPolicy(maxRetries int, sleeps *recordedSleeps) Policy {
	return Policy{
		MaxRetries: maxRetries,
		BaseDelay:  time.Second,
		Factor:     2,
		MaxDelay:   5 * time.Second,
		Sleep:      sleeps.sleep,
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	sleeps := &recordedSleeps{}
	calls := 0
	value, err := Do(context.Background(), testPolicy(5, sleeps), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", io.ErrUnexpectedEOF
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps.delays)
}

func TestDoInvokesAtMostMaxRetriesPlusOne(t *testing.T) {
	t.Parallel()

	sleeps := &recordedSleeps{}
	calls := 0
	_, err := Do(context.Background(), testPolicy(4, sleeps), func(ctx context.Context) (int, error) {
		calls++
		return 0, domain.StatusError(http.StatusTooManyRequests, 0, "slow down")
	})

	require.Error(t, err)
	assert.Equal(t, 5, calls)

	var retryErr *Error
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, domain.KindRateLimit, retryErr.Kind)
	assert.Equal(t, 5, retryErr.Attempts)
	assert.Equal(t, http.StatusTooManyRequests, retryErr.StatusCode)
	// 1s, 2s, 4s, then capped at 5s.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}, sleeps.delays)
}

func TestDoStopsOnNonRetryableKind(t *testing.T) {
	t.Parallel()

	sleeps := &recordedSleeps{}
	calls := 0
	_, err := Do(context.Background(), testPolicy(10, sleeps), func(ctx context.Context) (int, error) {
		calls++
		return 0, domain.StatusError(http.StatusNotFound, 0, "missing")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeps.delays)
	assert.Equal(t, domain.KindHTTP, Classify(err))
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
	assert.Equal(t, 1, Attempts(err))
}

func TestDoRetriesServerErrors(t *testing.T) {
	t.Parallel()

	sleeps := &recordedSleeps{}
	calls := 0
	_, err := Do(context.Background(), testPolicy(2, sleeps), func(ctx context.Context) (int, error) {
		calls++
		return 0, domain.StatusError(http.StatusBadGateway, 0, "upstream")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, domain.KindHTTP, Classify(err))
}

func TestDoHonoursRetryAfterHint(t *testing.T) {
	t.Parallel()

	sleeps := &recordedSleeps{}
	calls := 0
	_, err := Do(context.Background(), testPolicy(1, sleeps), func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, domain.StatusError(http.StatusTooManyRequests, 3*time.Second, "wait")
		}
		return 1, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second}, sleeps.delays)
}

func TestDoAppliesCallTimeout(t *testing.T) {
	t.Parallel()

	sleeps := &recordedSleeps{}
	policy := testPolicy(1, sleeps)
	policy.CallTimeout = 10 * time.Millisecond

	calls := 0
	_, err := Do(context.Background(), policy, func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, domain.KindTransient, Classify(err))
}

func TestDoStopsWhenParentCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	sleeps := &recordedSleeps{}
	calls := 0
	_, err := Do(ctx, testPolicy(10, sleeps), func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, io.ErrUnexpectedEOF
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"rate limit status", domain.StatusError(http.StatusTooManyRequests, 0, ""), domain.KindRateLimit},
		{"explicit kind", &domain.FetchError{Kind: domain.KindAgeVerification}, domain.KindAgeVerification},
		{"wrapped fetch error", fmt.Errorf("crawl: %w", &domain.FetchError{Kind: domain.KindInvalidPage}), domain.KindInvalidPage},
		{"deadline", context.DeadlineExceeded, domain.KindTransient},
		{"unexpected eof", io.ErrUnexpectedEOF, domain.KindTransient},
		{"connection reset text", errors.New("read tcp: connection reset by peer"), domain.KindTransient},
		{"other", errors.New("boom"), domain.KindUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 7*time.Second, ParseRetryAfter("7"))
	assert.Zero(t, ParseRetryAfter(""))
	assert.Zero(t, ParseRetryAfter("-3"))
	assert.Zero(t, ParseRetryAfter("soon"))
}
