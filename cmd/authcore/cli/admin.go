package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jobready/authcore/internal/users"
)

// SuperuserEnsurer creates or promotes the bootstrap administrator.
type SuperuserEnsurer interface {
	EnsureSuperuser(ctx context.Context, email, password string) (users.Account, bool, error)
}

// SeedAdminOptions defines flags for the seed-admin command.
type SeedAdminOptions struct {
	Email      string
	Password   string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// SeedAdminSummary is the JSON output of seed-admin.
type SeedAdminSummary struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Created   bool   `json:"created"`
}

// SeedAdminCommand makes sure a superuser account exists for email.
func SeedAdminCommand(ctx context.Context, svc SuperuserEnsurer, opts SeedAdminOptions) int {
	opts.Stdout, opts.Stderr = defaultWriters(opts.Stdout, opts.Stderr)
	if strings.TrimSpace(opts.Email) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "seed-admin: --email is required")
		return 1
	}
	if opts.Password == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "seed-admin: --password is required")
		return 1
	}
	account, created, err := svc.EnsureSuperuser(ctx, opts.Email, opts.Password)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "seed-admin: %v\n", err)
		return 1
	}
	summary := SeedAdminSummary{AccountID: account.ID, Email: account.Email, Created: created}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "seed-admin: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	verb := "promoted"
	if created {
		verb = "created"
	}
	_, _ = fmt.Fprintf(opts.Stdout, "%s superuser %s (%s)\n", verb, summary.Email, summary.AccountID)
	return 0
}
