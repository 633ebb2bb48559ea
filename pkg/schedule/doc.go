// Package schedule validates cron expressions and computes occurrence times.
//
// It wraps the robfig/cron parser with the standard five-field format
// (minute, hour, day-of-month, month, day-of-week) plus the usual
// descriptors (@daily, @hourly, ...). All schedule strings accepted by
// the scheduler core pass through this package exactly once, at the
// validation boundary, so the rest of the system can treat them as
// opaque.
package schedule
