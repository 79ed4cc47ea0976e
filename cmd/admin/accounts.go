package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"balance/internal/domain/institution"
)

type accountsCmd struct {
	hidden bool
}

func (*accountsCmd) Name() string     { return "accounts" }
func (*accountsCmd) Synopsis() string { return "lists the synced accounts of an exchange" }
func (*accountsCmd) Usage() string {
	return `accounts [-hidden] <source>

Prints the accounts synced from an exchange. Hidden accounts are skipped
unless -hidden is set.
`
}

func (c *accountsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.hidden, "hidden", false, "include accounts hidden because of a zero balance")
}

func (c *accountsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: expected exactly one exchange")
		return subcommands.ExitUsageError
	}
	source, err := institution.ParseSource(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: unknown exchange %q\n", f.Arg(0))
		return subcommands.ExitUsageError
	}

	a, err := newApp(ctx, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	inst, err := a.institutions.GetBySource(ctx, source)
	if errors.Is(err, institution.ErrInstitutionNotFound) {
		fmt.Fprintf(os.Stderr, "%s was never synced\n", source.DisplayName())
		return subcommands.ExitSuccess
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	accounts, err := a.accounts.ListAccountsByInstitutionID(ctx, inst.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "ID\tCurrency\tCurrent\tAvailable\tHidden\t")
	for _, acc := range accounts {
		if acc.IsHidden && !c.hidden {
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t\n",
			acc.ID, acc.Currency, acc.CurrentBalance.String(), acc.AvailableBalance.String(), acc.IsHidden)
	}
	w.Flush()

	return subcommands.ExitSuccess
}
