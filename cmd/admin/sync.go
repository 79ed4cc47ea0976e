package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"balance/internal/domain/exchange"
	"balance/internal/domain/institution"
)

type syncCmd struct {
	timeout time.Duration
	verbose bool
}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "syncs accounts and transactions from exchanges" }
func (*syncCmd) Usage() string {
	return `sync [-timeout 5m] [-v] [source...]

Syncs the given exchanges (poloniex, coinbase), or every connected exchange
when none is given.
`
}

func (c *syncCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.timeout, "timeout", 5*time.Minute, "overall timeout")
	f.BoolVar(&c.verbose, "v", false, "debug logging")
}

func (c *syncCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	sources := make([]institution.Source, 0, f.NArg())
	for _, arg := range f.Args() {
		s, err := institution.ParseSource(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: unknown exchange %q\n", arg)
			return subcommands.ExitUsageError
		}
		sources = append(sources, s)
	}

	a, err := newApp(ctx, c.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var results []*exchange.SyncResult
	if len(sources) == 0 {
		results, err = a.sync.SyncAll(ctx)
	} else {
		var errs []error
		for _, s := range sources {
			r, err := a.sync.Sync(ctx, s)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", s, err))
				continue
			}
			results = append(results, r)
		}
		err = errors.Join(errs...)
	}

	for _, r := range results {
		fmt.Println(summarize(r))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func summarize(r *exchange.SyncResult) string {
	line := fmt.Sprintf("%-10s", r.Source)
	if a := r.Accounts; a != nil {
		line += fmt.Sprintf(" accounts: %d upserted, %d hidden, %d deleted, %d errors;", a.Upserted, a.Hidden, a.Deleted, len(a.Errors))
	}
	if t := r.Transactions; t != nil {
		line += fmt.Sprintf(" transactions: %d upserted, %d errors", t.Upserted, len(t.Errors))
	}
	if r.TokenRefreshed {
		line += " (token refreshed)"
	}
	return line
}
