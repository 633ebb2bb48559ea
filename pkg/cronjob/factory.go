package cronjob

import (
	"fmt"
	"log/slog"
)

// BackendKind identifies a registered Backend implementation. The set
// is closed: adding a kind means adding a constant and a constructor to
// the registration table below, both compile-time-checked changes.
type BackendKind string

const (
	// BackendCrontab targets the system crontab of an OS account.
	BackendCrontab BackendKind = "crontab"
	// BackendMemory keeps entries in process memory.
	BackendMemory BackendKind = "memory"
)

// BackendContext carries the execution context a backend is bound to.
type BackendContext struct {
	// User is the OS account whose crontab is managed. Empty means the
	// invoking user. Ignored by backends without an account concept.
	User string
	// Logger for backend operations. Nil means discard.
	Logger *slog.Logger
}

var backendConstructors = map[BackendKind]func(BackendContext) Backend{
	BackendCrontab: func(bctx BackendContext) Backend {
		return NewCrontabBackend(
			WithCrontabUser(bctx.User),
			WithCrontabLogger(bctx.Logger),
		)
	},
	BackendMemory: func(BackendContext) Backend {
		return NewMemoryBackend()
	},
}

// OpenBackend constructs the Backend registered for kind, bound to the
// given execution context. Returns ErrUnknownBackend for kinds outside
// the registered set.
func OpenBackend(kind BackendKind, bctx BackendContext) (Backend, error) {
	construct, ok := backendConstructors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
	return construct(bctx), nil
}
