package cronjob_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miem-project-2259/openvair/pkg/cronjob"
)

// fakeCrontab emulates crontab(1): -l prints the table, - replaces it
// from stdin.
type fakeCrontab struct {
	table     string
	hasTable  bool
	failWrite bool
	argsSeen  [][]string
}

func (f *fakeCrontab) run(_ context.Context, stdin string, name string, args ...string) ([]byte, error) {
	f.argsSeen = append(f.argsSeen, append([]string{name}, args...))
	switch args[len(args)-1] {
	case "-l":
		if !f.hasTable {
			return []byte("no crontab for test"), errors.New("exit status 1")
		}
		return []byte(f.table), nil
	case "-":
		if f.failWrite {
			return []byte("crontab: installation rejected"), errors.New("exit status 1")
		}
		f.table = stdin
		f.hasTable = true
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected crontab invocation %v", args)
	}
}

func newCrontab(t *testing.T, fake *fakeCrontab, opts ...cronjob.CrontabOption) *cronjob.CrontabBackend {
	t.Helper()
	opts = append(opts, cronjob.WithCommandRunner(fake.run))
	return cronjob.NewCrontabBackend(opts...)
}

func TestCrontabBackend_Create(t *testing.T) {
	t.Parallel()

	t.Run("installs a tagged line into an empty table", func(t *testing.T) {
		t.Parallel()

		fake := &fakeCrontab{}
		b := newCrontab(t, fake)
		tag := cronjob.TagFor(uuid.New())

		entry, err := b.Create(context.Background(), tag, cronjob.EntrySpec{Schedule: "0 3 * * *", Command: "backup.sh"})
		require.NoError(t, err)
		require.Equal(t, tag, entry.Tag)
		assert.Equal(t, fmt.Sprintf("0 3 * * * backup.sh # %s\n", tag), fake.table)
	})

	t.Run("duplicate tag fails", func(t *testing.T) {
		t.Parallel()

		fake := &fakeCrontab{}
		b := newCrontab(t, fake)
		tag := cronjob.TagFor(uuid.New())
		ctx := context.Background()

		_, err := b.Create(ctx, tag, cronjob.EntrySpec{Schedule: "0 3 * * *", Command: "a.sh"})
		require.NoError(t, err)
		_, err = b.Create(ctx, tag, cronjob.EntrySpec{Schedule: "0 4 * * *", Command: "b.sh"})
		require.ErrorIs(t, err, cronjob.ErrEntryExists)
	})

	t.Run("write failure leaves the table unchanged", func(t *testing.T) {
		t.Parallel()

		fake := &fakeCrontab{hasTable: true, table: "MAILTO=ops@example.com\n", failWrite: true}
		b := newCrontab(t, fake)

		_, err := b.Create(context.Background(), cronjob.TagFor(uuid.New()), cronjob.EntrySpec{Schedule: "0 3 * * *", Command: "x.sh"})
		require.ErrorIs(t, err, cronjob.ErrBackendWrite)
		assert.Equal(t, "MAILTO=ops@example.com\n", fake.table)
	})

	t.Run("targets another account when configured", func(t *testing.T) {
		t.Parallel()

		fake := &fakeCrontab{}
		b := newCrontab(t, fake, cronjob.WithCrontabUser("openvair"))

		_, err := b.Create(context.Background(), cronjob.TagFor(uuid.New()), cronjob.EntrySpec{Schedule: "0 3 * * *", Command: "x.sh"})
		require.NoError(t, err)
		require.True(t, slices.ContainsFunc(fake.argsSeen, func(args []string) bool {
			return slices.Contains(args, "-u") && slices.Contains(args, "openvair")
		}))
	})
}

func TestCrontabBackend_ForeignLines(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	tag := cronjob.TagFor(id)
	foreign := "MAILTO=ops@example.com\n" +
		"# hand-written entry below\n" +
		"15 6 * * * /usr/local/bin/logrotate.sh\n"

	fake := &fakeCrontab{hasTable: true, table: foreign}
	b := newCrontab(t, fake)
	ctx := context.Background()

	_, err := b.Create(ctx, tag, cronjob.EntrySpec{Schedule: "0 3 * * *", Command: "backup.sh"})
	require.NoError(t, err)

	t.Run("foreign lines survive a create", func(t *testing.T) {
		assert.True(t, strings.HasPrefix(fake.table, foreign), "got table:\n%s", fake.table)
	})

	t.Run("foreign lines are not listed", func(t *testing.T) {
		entries, err := b.List(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, tag, entries[0].Tag)
	})

	t.Run("foreign lines survive edit and delete", func(t *testing.T) {
		_, err := b.Edit(ctx, tag, cronjob.EntrySpec{Schedule: "30 3 * * *", Command: "backup.sh --full"})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(fake.table, foreign))
		assert.Contains(t, fake.table, "30 3 * * * backup.sh --full # "+string(tag))

		require.NoError(t, b.Delete(ctx, tag))
		assert.Equal(t, foreign, fake.table)
	})
}

func TestCrontabBackend_ReadBack(t *testing.T) {
	t.Parallel()

	t.Run("round-trips five-field entries", func(t *testing.T) {
		t.Parallel()

		fake := &fakeCrontab{}
		b := newCrontab(t, fake)
		tag := cronjob.TagFor(uuid.New())
		ctx := context.Background()

		_, err := b.Create(ctx, tag, cronjob.EntrySpec{Schedule: "*/10 2 * * 1-5", Command: "sync.sh --quiet"})
		require.NoError(t, err)

		got, err := b.Get(ctx, tag)
		require.NoError(t, err)
		assert.Equal(t, "*/10 2 * * 1-5", got.Schedule)
		assert.Equal(t, "sync.sh --quiet", got.Command)
	})

	t.Run("round-trips descriptor schedules", func(t *testing.T) {
		t.Parallel()

		fake := &fakeCrontab{}
		b := newCrontab(t, fake)
		tag := cronjob.TagFor(uuid.New())
		ctx := context.Background()

		_, err := b.Create(ctx, tag, cronjob.EntrySpec{Schedule: "@daily", Command: "cleanup.sh"})
		require.NoError(t, err)

		got, err := b.Get(ctx, tag)
		require.NoError(t, err)
		assert.Equal(t, "@daily", got.Schedule)
		assert.Equal(t, "cleanup.sh", got.Command)
	})

	t.Run("missing tag", func(t *testing.T) {
		t.Parallel()

		b := newCrontab(t, &fakeCrontab{})
		_, err := b.Get(context.Background(), cronjob.TagFor(uuid.New()))
		require.ErrorIs(t, err, cronjob.ErrEntryNotFound)

		err = b.Delete(context.Background(), cronjob.TagFor(uuid.New()))
		require.ErrorIs(t, err, cronjob.ErrEntryNotFound)

		_, err = b.Edit(context.Background(), cronjob.TagFor(uuid.New()), cronjob.EntrySpec{Schedule: "@daily", Command: "x"})
		require.ErrorIs(t, err, cronjob.ErrEntryNotFound)
	})

	t.Run("account without a crontab reads as empty", func(t *testing.T) {
		t.Parallel()

		b := newCrontab(t, &fakeCrontab{})
		entries, err := b.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
