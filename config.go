package reftable

import (
	"os"

	"go.uber.org/zap"

	"github.com/dolthub/reftable-stack/internal/table"
)

// Options configures a Stack.
type Options struct {
	// HashID is the expected hash format. Zero adopts the format of
	// the first table opened; non-zero requires every subsequent
	// table to match, else Open/load fails with ErrFormat.
	HashID table.HashFormat

	// DefaultPermissions is applied to every file this stack creates
	// (tables and the manifest). Zero uses the process umask default.
	DefaultPermissions os.FileMode

	// DisableAutoCompact, when set, skips the post-commit
	// auto-compaction step.
	DisableAutoCompact bool

	// ExactLogMessage, when set, writes log messages verbatim. When
	// unset, multi-line messages are rejected with ErrAPI and
	// single-line messages are normalized with a trailing newline.
	ExactLogMessage bool

	// CompactionFactor is the geometric factor the planner uses to
	// decide whether a table is large enough to stand alone. Zero
	// defaults to 2.
	CompactionFactor uint64

	// FooterCacheSize bounds the number of table footers kept in the
	// process-local LRU cache. Zero defaults to 128.
	FooterCacheSize int

	// Logger receives structured diagnostics. Nil defaults to a no-op
	// logger.
	Logger *zap.Logger
}

func (o Options) normalized() Options {
	if o.CompactionFactor == 0 {
		o.CompactionFactor = 2
	}
	if o.FooterCacheSize == 0 {
		o.FooterCacheSize = 128
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o Options) perm(defaultPerm os.FileMode) os.FileMode {
	if o.DefaultPermissions != 0 {
		return o.DefaultPermissions
	}
	return defaultPerm
}
