package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidExpression is returned when a cron expression cannot be parsed.
var ErrInvalidExpression = errors.New("schedule: invalid cron expression")

// parser accepts the classic five-field crontab format plus descriptors,
// matching what the system cron daemon understands.
var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate reports whether expr is a well-formed cron expression.
// The returned error wraps ErrInvalidExpression and names the offending
// expression.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, err)
	}
	return nil
}

// Next returns the first occurrence of expr strictly after the given time.
func Next(expr string, after time.Time) (time.Time, error) {
	s, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidExpression, expr, err)
	}
	return s.Next(after), nil
}
