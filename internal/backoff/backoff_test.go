package backoff_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/heraldhq/herald/internal/backoff"
	"github.com/stretchr/testify/assert"
)

func TestBackoff_Exponential(t *testing.T) {
	t.Parallel()

	bo := &backoff.ExponentialBackoff{
		Interval: 2 * time.Second,
		Base:     2,
	}
	testCases := []struct {
		retries int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{3, 16 * time.Second},
		{-1, 2 * time.Second},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("Duration(%d)", tc.retries), func(t *testing.T) {
			assert.Equal(t, tc.want, bo.Duration(tc.retries))
		})
	}
}

func TestBackoff_Constant(t *testing.T) {
	t.Parallel()

	bo := &backoff.ConstantBackoff{Interval: 30 * time.Second}
	for _, retries := range []int{0, 1, 5, 10} {
		assert.Equal(t, 30*time.Second, bo.Duration(retries))
	}
}
