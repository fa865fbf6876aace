package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseInterval converts the supported cron subset into a tick interval.
//
// Only minute-granularity cadences are supported: "* * * * *" ticks every
// minute and "*/N * * * *" every N minutes. Anything richer would need a real
// cron engine, which the default cadences don't justify.
func ParseInterval(expr string) (time.Duration, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return 0, fmt.Errorf("cron expression %q: want 5 fields, got %d", expr, len(fields))
	}
	for _, f := range fields[1:] {
		if f != "*" {
			return 0, fmt.Errorf("cron expression %q: only minute-interval expressions are supported", expr)
		}
	}

	minute := fields[0]
	if minute == "*" {
		return time.Minute, nil
	}
	step, ok := strings.CutPrefix(minute, "*/")
	if !ok {
		return 0, fmt.Errorf("cron expression %q: minute field must be \"*\" or \"*/N\"", expr)
	}
	n, err := strconv.Atoi(step)
	if err != nil || n < 1 || n > 59 {
		return 0, fmt.Errorf("cron expression %q: invalid minute step %q", expr, step)
	}
	return time.Duration(n) * time.Minute, nil
}
