package backoff

import "time"

// Backoff computes the delay before the next attempt given the number of
// retries already made.
type Backoff interface {
	Duration(retries int) time.Duration
}

// ExponentialBackoff returns Interval * Base^retries.
type ExponentialBackoff struct {
	Interval time.Duration
	Base     int
}

var _ Backoff = (*ExponentialBackoff)(nil)

func (b *ExponentialBackoff) Duration(retries int) time.Duration {
	if retries < 0 {
		retries = 0
	}
	d := b.Interval
	for i := 0; i < retries; i++ {
		d *= time.Duration(b.Base)
	}
	return d
}

// ConstantBackoff returns the same interval for every retry.
type ConstantBackoff struct {
	Interval time.Duration
}

var _ Backoff = (*ConstantBackoff)(nil)

func (b *ConstantBackoff) Duration(int) time.Duration {
	return b.Interval
}
