package cronjob

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// CommandRunner executes an OS command with optional stdin and returns
// its combined output. Injectable so tests never touch a real crontab.
type CommandRunner func(ctx context.Context, stdin string, name string, args ...string) ([]byte, error)

func defaultRunner(ctx context.Context, stdin string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	return cmd.CombinedOutput()
}

// CrontabBackend projects physical entries onto a user's system crontab
// through the crontab(1) utility.
//
// Every mutation loads the full table, applies the change in memory and
// replaces the whole table through a single `crontab -` invocation, so a
// mid-operation failure leaves the installed table untouched. Lines not
// carrying this system's tag marker are preserved verbatim, in order.
//
// The tag rides as a trailing ` # cronjob:<id>` on the entry line. The
// cron daemon hands the line to sh, which drops the comment, so the
// marker is invisible at execution time.
type CrontabBackend struct {
	user string
	run  CommandRunner
	log  *slog.Logger
}

// CrontabOption configures a CrontabBackend.
type CrontabOption func(*CrontabBackend)

// WithCrontabUser targets another OS account's table (crontab -u).
// Requires the privileges crontab itself demands for -u.
func WithCrontabUser(user string) CrontabOption {
	return func(b *CrontabBackend) { b.user = user }
}

// WithCommandRunner replaces the crontab(1) invocation, for tests.
func WithCommandRunner(run CommandRunner) CrontabOption {
	return func(b *CrontabBackend) {
		if run != nil {
			b.run = run
		}
	}
}

// WithCrontabLogger sets the logger. Defaults to a discard logger.
func WithCrontabLogger(log *slog.Logger) CrontabOption {
	return func(b *CrontabBackend) {
		if log != nil {
			b.log = log
		}
	}
}

// NewCrontabBackend creates a backend bound to the invoking user's
// crontab, or to another account's via WithCrontabUser.
func NewCrontabBackend(opts ...CrontabOption) *CrontabBackend {
	b := &CrontabBackend{run: defaultRunner, log: discardLogger()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *CrontabBackend) Create(ctx context.Context, tag Tag, spec EntrySpec) (Entry, error) {
	t, err := b.load(ctx)
	if err != nil {
		return Entry{}, err
	}
	if _, ok := t.find(tag); ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryExists, tag)
	}
	e := Entry{Tag: tag, Schedule: spec.Schedule, Command: spec.Command}
	t.lines = append(t.lines, crontabLine{entry: &e})
	if err := b.store(ctx, t); err != nil {
		return Entry{}, err
	}
	b.log.InfoContext(ctx, "crontab entry installed", slog.String("tag", string(tag)))
	return e, nil
}

func (b *CrontabBackend) Get(ctx context.Context, tag Tag) (Entry, error) {
	t, err := b.load(ctx)
	if err != nil {
		return Entry{}, err
	}
	i, ok := t.find(tag)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, tag)
	}
	return *t.lines[i].entry, nil
}

func (b *CrontabBackend) List(ctx context.Context) ([]Entry, error) {
	t, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, l := range t.lines {
		if l.entry != nil {
			out = append(out, *l.entry)
		}
	}
	return out, nil
}

func (b *CrontabBackend) Edit(ctx context.Context, tag Tag, spec EntrySpec) (Entry, error) {
	t, err := b.load(ctx)
	if err != nil {
		return Entry{}, err
	}
	i, ok := t.find(tag)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, tag)
	}
	e := Entry{Tag: tag, Schedule: spec.Schedule, Command: spec.Command}
	t.lines[i].entry = &e
	if err := b.store(ctx, t); err != nil {
		return Entry{}, err
	}
	b.log.InfoContext(ctx, "crontab entry replaced", slog.String("tag", string(tag)))
	return e, nil
}

func (b *CrontabBackend) Delete(ctx context.Context, tag Tag) error {
	t, err := b.load(ctx)
	if err != nil {
		return err
	}
	i, ok := t.find(tag)
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, tag)
	}
	t.lines = append(t.lines[:i], t.lines[i+1:]...)
	if err := b.store(ctx, t); err != nil {
		return err
	}
	b.log.InfoContext(ctx, "crontab entry removed", slog.String("tag", string(tag)))
	return nil
}

// crontabLine is either a verbatim foreign line or an owned entry.
type crontabLine struct {
	raw   string
	entry *Entry
}

type crontabTable struct {
	lines []crontabLine
}

func (t *crontabTable) find(tag Tag) (int, bool) {
	for i, l := range t.lines {
		if l.entry != nil && l.entry.Tag == tag {
			return i, true
		}
	}
	return 0, false
}

func (b *CrontabBackend) args(extra ...string) []string {
	var args []string
	if b.user != "" {
		args = append(args, "-u", b.user)
	}
	return append(args, extra...)
}

func (b *CrontabBackend) load(ctx context.Context) (*crontabTable, error) {
	out, err := b.run(ctx, "", "crontab", b.args("-l")...)
	if err != nil {
		// An account without a crontab is an empty table, not a failure.
		if strings.Contains(string(out), "no crontab") {
			return &crontabTable{}, nil
		}
		return nil, fmt.Errorf("%w: crontab -l: %v: %s", ErrBackendRead, err, strings.TrimSpace(string(out)))
	}

	t := &crontabTable{}
	for line := range strings.Lines(string(out)) {
		line = strings.TrimRight(line, "\n")
		if e, ok := parseEntryLine(line); ok {
			t.lines = append(t.lines, crontabLine{entry: &e})
			continue
		}
		t.lines = append(t.lines, crontabLine{raw: line})
	}
	// Drop a single trailing blank produced by the final newline.
	if n := len(t.lines); n > 0 && t.lines[n-1].entry == nil && t.lines[n-1].raw == "" {
		t.lines = t.lines[:n-1]
	}
	return t, nil
}

func (b *CrontabBackend) store(ctx context.Context, t *crontabTable) error {
	var sb strings.Builder
	for _, l := range t.lines {
		if l.entry != nil {
			sb.WriteString(renderEntryLine(*l.entry))
		} else {
			sb.WriteString(l.raw)
		}
		sb.WriteByte('\n')
	}
	out, err := b.run(ctx, sb.String(), "crontab", b.args("-")...)
	if err != nil {
		return fmt.Errorf("%w: crontab -: %v: %s", ErrBackendWrite, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func renderEntryLine(e Entry) string {
	return fmt.Sprintf("%s %s # %s", e.Schedule, e.Command, e.Tag)
}

// parseEntryLine recognizes lines previously written by renderEntryLine.
// Anything else, including commented-out copies, stays foreign.
func parseEntryLine(line string) (Entry, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return Entry{}, false
	}
	body, marker, ok := strings.Cut(trimmed, " # "+tagPrefix)
	if !ok {
		return Entry{}, false
	}
	tag := Tag(tagPrefix + strings.TrimSpace(marker))
	if _, ok := tag.JobID(); !ok {
		return Entry{}, false
	}

	fields := strings.Fields(body)
	// Descriptor schedules (@daily and friends) occupy a single field.
	if len(fields) >= 2 && strings.HasPrefix(fields[0], "@") {
		return Entry{Tag: tag, Schedule: fields[0], Command: strings.Join(fields[1:], " ")}, true
	}
	if len(fields) < 6 {
		return Entry{}, false
	}
	return Entry{
		Tag:      tag,
		Schedule: strings.Join(fields[:5], " "),
		Command:  strings.Join(fields[5:], " "),
	}, true
}
