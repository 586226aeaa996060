package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	"budget/internal/core"
	"budget/internal/engine"
	"budget/internal/impexp"
	"budget/internal/ledger"
	"budget/internal/view"
)

// Env is what the budgetctl commands run against.
type Env struct {
	Out  io.Writer
	Err  io.Writer
	Open func(ctx context.Context) (*Ledger, error)
}

// Register the subcommands.
func Register(c *subcommands.Commander, env *Env) {
	c.Register(&addCmd{env: env}, "entries")
	c.Register(&listCmd{env: env}, "entries")
	c.Register(&summaryCmd{env: env}, "entries")
	c.Register(&rmCmd{env: env}, "entries")
	c.Register(&clearCmd{env: env}, "entries")

	c.Register(&exportCmd{env: env}, "data")
	c.Register(&importCmd{env: env}, "data")

	c.Register(&currencyCmd{env: env}, "settings")
}

// withLedger opens the ledger, runs fn and closes the ledger again.
func (e *Env) withLedger(ctx context.Context, fn func(*Ledger) error) subcommands.ExitStatus {
	l, err := e.Open(ctx)
	if err != nil {
		fmt.Fprintln(e.Err, err)
		return subcommands.ExitFailure
	}
	defer l.Close()

	if err := fn(l); err != nil {
		fmt.Fprintln(e.Err, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type addCmd struct {
	env      *Env
	kind     string
	date     string
	category string
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "record an income or an expense" }
func (*addCmd) Usage() string {
	return `budgetctl add [-type expense|income] [-date YYYY-MM-DD] [-category <name>] <title> <amount>

  Adds one entry. The amount accepts a dot or a comma as decimal separator.
  The date defaults to today and the category to Allgemein or Sonstiges.
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "type", "expense", "Kind of entry (expense, income).")
	f.StringVar(&c.date, "date", "", "Booking date, defaults to today.")
	f.StringVar(&c.category, "category", "", "Category of the entry.")
}

func (c *addCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	kind, err := core.ParseKind(c.kind)
	if err != nil {
		fmt.Fprintln(c.env.Err, err)
		return subcommands.ExitUsageError
	}
	cents, err := core.ParseDecimalToCents(f.Arg(1))
	if err != nil {
		fmt.Fprintf(c.env.Err, "invalid amount %q: %v\n", f.Arg(1), err)
		return subcommands.ExitUsageError
	}
	draft := ledger.Draft{
		Kind:     kind,
		Title:    f.Arg(0),
		Amount:   core.Money{Cents: cents},
		Category: c.category,
	}
	if c.date != "" {
		if draft.Date, err = core.ParseDate(c.date); err != nil {
			fmt.Fprintln(c.env.Err, err)
			return subcommands.ExitUsageError
		}
	}

	return c.env.withLedger(ctx, func(l *Ledger) error {
		e, err := l.Entries.Add(ctx, draft)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.env.Out, "%s %s %s %s\n", e.ID, e.Date, e.Title, view.SignedAmount(e, l.Settings.Get().Currency))
		return nil
	})
}

// criteriaFlags are the search and filter flags shared by list and summary.
type criteriaFlags struct {
	query string
	kind  string
	rng   string
}

func (c *criteriaFlags) set(f *flag.FlagSet) {
	f.StringVar(&c.query, "q", "", "Case-insensitive search in title and category.")
	f.StringVar(&c.kind, "type", "all", "Kind filter (all, income, expense).")
	f.StringVar(&c.rng, "range", "all", "Time range (all, month).")
}

func (c *criteriaFlags) build(ctx context.Context, l *Ledger) view.Ledger {
	criteria := engine.ParseCriteria(c.query, c.kind, c.rng)
	list := engine.Filter(l.Entries.All(ctx), criteria, l.Entries.Now())
	return view.Build(list, engine.Aggregate(list), engine.CategoryBreakdown(list), l.Settings.Get(), criteria)
}

type listCmd struct {
	env *Env
	criteriaFlags
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list entries, most recent first" }
func (*listCmd) Usage() string {
	return `budgetctl list [-q <text>] [-type all|income|expense] [-range all|month]
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) { c.criteriaFlags.set(f) }

func (c *listCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.env.withLedger(ctx, func(l *Ledger) error {
		v := c.build(ctx, l)
		if v.Empty() {
			fmt.Fprintln(c.env.Out, "Keine Einträge")
			return nil
		}
		tw := tabwriter.NewWriter(c.env.Out, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "Datum\tTitel\tKategorie\tBetrag\tArt\tID\t")
		for _, r := range v.Rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n", r.Date, r.Title, r.Category, r.Amount, r.KindLabel, r.ID)
		}
		return tw.Flush()
	})
}

type summaryCmd struct {
	env *Env
	criteriaFlags
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "show totals and expenses per category" }
func (*summaryCmd) Usage() string {
	return `budgetctl summary [-q <text>] [-type all|income|expense] [-range all|month]
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) { c.criteriaFlags.set(f) }

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.env.withLedger(ctx, func(l *Ledger) error {
		v := c.build(ctx, l)
		fmt.Fprintf(c.env.Out, "Zeitraum:   %s\n", v.RangeLabel)
		fmt.Fprintf(c.env.Out, "Einnahmen:  %s\n", v.KPIs.Income)
		fmt.Fprintf(c.env.Out, "Ausgaben:   %s\n", v.KPIs.Expense)
		fmt.Fprintf(c.env.Out, "Saldo:      %s\n", v.KPIs.Balance)
		if len(v.Segments) == 0 {
			return nil
		}
		fmt.Fprintln(c.env.Out)
		tw := tabwriter.NewWriter(c.env.Out, 0, 0, 2, ' ', 0)
		for _, s := range v.Segments {
			fmt.Fprintf(tw, "%s\t%s\t%d%%\n", s.Label, s.Amount, s.Percent)
		}
		return tw.Flush()
	})
}

type rmCmd struct {
	env *Env
}

func (*rmCmd) Name() string           { return "rm" }
func (*rmCmd) Synopsis() string       { return "delete entries by id" }
func (*rmCmd) Usage() string          { return "budgetctl rm <id>...\n" }
func (*rmCmd) SetFlags(*flag.FlagSet) {}

func (c *rmCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return c.env.withLedger(ctx, func(l *Ledger) error {
		var missing []string
		for _, id := range f.Args() {
			removed, err := l.Entries.Remove(ctx, id)
			if err != nil {
				return err
			}
			if !removed {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("no entry with id %s", strings.Join(missing, ", "))
		}
		return nil
	})
}

type clearCmd struct {
	env *Env
	yes bool
}

func (*clearCmd) Name() string     { return "clear" }
func (*clearCmd) Synopsis() string { return "delete every entry" }
func (*clearCmd) Usage() string    { return "budgetctl clear -yes\n" }

func (c *clearCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "Confirm deleting all entries.")
}

func (c *clearCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.yes {
		fmt.Fprintln(c.env.Err, "refusing to delete all entries without -yes")
		return subcommands.ExitUsageError
	}
	return c.env.withLedger(ctx, func(l *Ledger) error {
		return l.Entries.Clear(ctx)
	})
}

type exportCmd struct {
	env    *Env
	output string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "write all entries as CSV" }
func (*exportCmd) Usage() string {
	return `budgetctl export [-o <file>]

  Writes every entry, ignoring any filter. Use -o . to name the file
  budget-export-YYYY-MM-DD.csv in the current directory.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "", "Output file, stdout when empty.")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.env.withLedger(ctx, func(l *Ledger) error {
		data, err := impexp.Export(l.Entries.All(ctx))
		if err != nil {
			return err
		}
		switch c.output {
		case "":
			_, err = c.env.Out.Write(data)
			return err
		case ".":
			c.output = impexp.ExportFilename(l.Entries.Now())
		}
		if err := os.WriteFile(c.output, data, 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Fprintln(c.env.Out, c.output)
		return nil
	})
}

type importCmd struct {
	env *Env
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "merge entries from a JSON or CSV file" }
func (*importCmd) Usage() string {
	return `budgetctl import <file>

  Reads a JSON list of entries or a CSV file in the export layout and puts the
  valid records in front of the existing entries.
`
}
func (*importCmd) SetFlags(*flag.FlagSet) {}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return c.env.withLedger(ctx, func(l *Ledger) error {
		file, err := os.Open(f.Arg(0))
		if err != nil {
			return fmt.Errorf("%s: %w", impexp.UserMessage(impexp.ErrUnreadable), err)
		}
		defer file.Close()

		res, err := impexp.Import(ctx, l.Entries, file.Name(), file)
		if err != nil {
			return fmt.Errorf("%s: %w", impexp.UserMessage(err), err)
		}
		fmt.Fprintf(c.env.Out, "%d Einträge importiert, %d verworfen\n", res.Imported, res.Dropped)
		return nil
	})
}

type currencyCmd struct {
	env *Env
}

func (*currencyCmd) Name() string     { return "currency" }
func (*currencyCmd) Synopsis() string { return "show or set the display currency" }
func (*currencyCmd) Usage() string {
	return fmt.Sprintf("budgetctl currency [%s]\n", strings.Join(core.SupportedCurrencies, "|"))
}
func (*currencyCmd) SetFlags(*flag.FlagSet) {}

func (c *currencyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() > 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return c.env.withLedger(ctx, func(l *Ledger) error {
		settings := l.Settings.Get()
		if f.NArg() == 1 {
			var err error
			if settings, err = l.Settings.SetCurrency(ctx, f.Arg(0)); err != nil {
				return err
			}
		}
		fmt.Fprintln(c.env.Out, settings.Currency)
		return nil
	})
}
