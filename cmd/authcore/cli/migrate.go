package cli

import (
	"context"
	"fmt"
	"io"
)

// MigrateOptions defines flags for the migrate command.
type MigrateOptions struct {
	// DryRun prints the DDL instead of applying it.
	DryRun bool
	Schema string
	Stdout io.Writer
	Stderr io.Writer
}

// MigrateCommand applies the schema through apply.
func MigrateCommand(ctx context.Context, apply func(context.Context) error, opts MigrateOptions) int {
	opts.Stdout, opts.Stderr = defaultWriters(opts.Stdout, opts.Stderr)
	if opts.DryRun {
		_, _ = io.WriteString(opts.Stdout, opts.Schema)
		return 0
	}
	if apply == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "migrate: no database configured")
		return 1
	}
	if err := apply(ctx); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "migrate: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(opts.Stdout, "schema applied")
	return 0
}
