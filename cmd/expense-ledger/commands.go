package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/peterbourgon/ff/v4"
	"github.com/zombor/expense-ledger/internal/expense"
	"github.com/zombor/expense-ledger/internal/watcher"
)

type app struct {
	out   io.Writer
	flags rootFlags
	root  *ff.FlagSet
}

func newApp(out io.Writer) *app {
	root := ff.NewFlagSet("expense-ledger")
	return &app{out: out, root: root, flags: registerRootFlags(root)}
}

// withService prepares logging and the service before running fn
func (a *app) withService(fn func(ctx context.Context, cfg expense.Config, svc *expense.Service, args []string) error) func(context.Context, []string) error {
	return func(ctx context.Context, args []string) error {
		setupLogging(*a.flags.debug)
		cfg := a.flags.config()
		svc, closeFn, err := newService(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeFn()
		return fn(ctx, cfg, svc, args)
	}
}

type filterFlags struct {
	month, vendor, label, currency, status *string
}

func registerFilterFlags(fs *ff.FlagSet) filterFlags {
	return filterFlags{
		month:    fs.StringLong("month", "", "Only records of this month (YYYY-MM)"),
		vendor:   fs.StringLong("vendor", "", "Only records whose vendor contains this text"),
		label:    fs.StringLong("label", "", "Only records carrying this label"),
		currency: fs.StringLong("currency", "", "Only records in this currency"),
		status:   fs.StringLong("status", "", "Only records with this status (processed, needs_review, verified)"),
	}
}

func (f filterFlags) filter() expense.Filter {
	return expense.Filter{
		Month:    *f.month,
		Vendor:   *f.vendor,
		Label:    *f.label,
		Currency: strings.ToUpper(*f.currency),
		Status:   expense.Status(*f.status),
	}
}

func requireArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("usage: %s", usage)
	}
	return nil
}

func (a *app) command() *ff.Command {
	root := &ff.Command{
		Name:      "expense-ledger",
		Usage:     "expense-ledger [FLAGS] <SUBCOMMAND> ...",
		ShortHelp: "Extract, file and report invoices and receipts",
		Flags:     a.root,
		Exec: func(ctx context.Context, args []string) error {
			return ff.ErrHelp
		},
	}
	root.Subcommands = []*ff.Command{
		a.processCommand(),
		a.listCommand(),
		a.showCommand(),
		a.labelCommand(),
		a.noteCommand(),
		a.attachCommand(),
		a.categorizeCommand(),
		a.verifyCommand(),
		a.deleteCommand(),
		a.categoriesCommand(),
		a.exportCommand(),
		a.reportCommand(),
		a.vatReportCommand(),
		a.failuresCommand(),
		a.rebuildCommand(),
		a.watchCommand(),
		a.serveCommand(),
	}
	return root
}

func (a *app) processCommand() *ff.Command {
	fs := ff.NewFlagSet("process").SetParent(a.root)
	recursive := fs.BoolLong("recursive", "Descend into subdirectories")
	force := fs.BoolLong("force", "Re-extract documents already in the ledger")
	noFile := fs.BoolLong("no-file", "Leave documents where they are")
	return &ff.Command{
		Name:      "process",
		Usage:     "expense-ledger process [FLAGS] <PATH>...",
		ShortHelp: "Extract records from documents or directories",
		Flags:     fs,
		Exec: a.withService(func(ctx context.Context, cfg expense.Config, svc *expense.Service, args []string) error {
			if err := requireArgs(args, 1, "process <PATH>..."); err != nil {
				return err
			}
			opts := expense.ProcessOptions{Recursive: *recursive, Force: *force, NoFile: *noFile}

			var outcomes []expense.Outcome
			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				if info.IsDir() {
					dirOutcomes, err := svc.ProcessDir(ctx, path, opts)
					outcomes = append(outcomes, dirOutcomes...)
					if err != nil {
						return err
					}
					continue
				}
				outcome, err := svc.ProcessFile(ctx, path, opts)
				if err != nil {
					slog.Error("Failed to process document", "path", path, "error", err)
					outcome = expense.Outcome{Path: path, Result: expense.ResultFailed, Reason: err.Error()}
				}
				outcomes = append(outcomes, outcome)
			}
			return renderOutcomes(a.out, outcomes)
		}),
	}
}

func (a *app) listCommand() *ff.Command {
	fs := ff.NewFlagSet("list").SetParent(a.root)
	filters := registerFilterFlags(fs)
	return &ff.Command{
		Name:      "list",
		Usage:     "expense-ledger list [FLAGS]",
		ShortHelp: "List records",
		Flags:     fs,
		Exec: a.withService(func(ctx context.Context, cfg expense.Config, svc *expense.Service, args []string) error {
			records, err := svc.List(filters.filter())
			if err != nil {
				return err
			}
			return renderList(a.out, records)
		}),
	}
}

func (a *app) showCommand() *ff.Command {
	fs := ff.NewFlagSet("show").SetParent(a.root)
	return &ff.Command{
		Name:      "show",
		Usage:     "expense-ledger show <ID>",
		ShortHelp: "Show one record in full",
		Flags:     fs,
		Exec: a.withService(func(ctx context.Context, cfg expense.Config, svc *expense.Service, args []string) error {
			if err := requireArgs(args, 1, "show <ID>"); err != nil {
				return err
			}
			record, err := svc.Get(args[0])
			if err != nil {
				return err
			}
			return renderExpense(a.out, record)
		}),
	}
}

func (a *app) labelCommand() *ff.Command {
	fs := ff.NewFlagSet("label").SetParent(a.root)
	return &ff.Command{
		Name:      "label",
		Usage:     "expense-ledger label <ID> <LABEL>...",
		ShortHelp: "Add labels to a record",
		Flags:     fs,
		Exec: a.withService(func(ctx context.Context, cfg expense.Config, svc *expense.Service, args []string) error {
			if err := requireArgs(args, 2, "label <ID> <LABEL>..."); err != nil {
				return err
			}
			record, err := svc.AddLabels(args[0], args[1:]...)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s labels: %s\n", record.ID, strings.Join(record.Labels, ", "))
			return nil
		}),
	}
}

func (a *app) noteCommand() *ff.Command {
	fs := ff.NewFlagSet("note").SetParent(a.root)
	return &ff.Command{
		Name:      "note",
		Usage:     "expense-ledger note <ID> <TEXT>...",
		ShortHelp: "Append a note to a record",
		Flags:     fs,
		Exec: a.withService(func(ctx context.Context, cfg expense.Config, svc *expense.Service, args []string) error {
			if err := requireArgs(args, 2, "note <ID> <TEXT>..."); err != nil {
				return err
			}
			record, err := svc.AddNote(args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Added note to %s\n", record.ID)
			return nil
		}),
	}
}

func (a *app) attachCommand() *ff.Command {
	fs := ff.NewFlagSet("attach").SetParent(a.root)
	return &ff.Command{
		Name:      "attach",
		Usage:     "expense-ledger attach <ID> <FILE>",
		ShortHelp: "Attach a context file to a record",
		Flags:     fs,
		Exec: a.withService(func(ctx context.Context, cfg expense.Config, svc *expense.Service, args []string) error {
			if err := requireArgs(args, 2, "attach <ID> <FILE>"); err != nil {
				return err
			}
			record, err := svc.AttachContext(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Attached %s to %s\n", args[1], record.ID)
			return nil
		}),
	}
}

func (a *app) categorizeCommand() *ff.Command {
	fs := ff.NewFlagSet("categorize").SetParent(a.root)
	return &ff.Command{
		Name:      "categorize",
		Usage:     "expense-ledger categorize <ID> <ACCOUNT>",
		ShortHelp: "Set the bookkeeping account of a record",
		Flags:     fs,
		Exec: a.withService(func(ctx context.Context, cfg expense.Config, svc *expense.Service, args []string) error {
			if err := requireArgs(args, 2, "categorize <ID> <ACCOUNT>"); err != nil {
				return err
			}
			account, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid account %q: %w", args[1], err)
			}
			record, err := svc.Categorize(args[0], account)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s categorized as %d %s\n", record.ID, account, record.CategoryName)
			return nil
		}),
	}
}

func (a *app) verifyCommand() *ff.Command {
	fs := ff.NewFlagSet("verify").SetParent(a.root)
	return &ff.Command{
		Name:      "verify",
		Usage:     "expense-ledger verify <ID>",
		ShortHelp: "Mark a record as verified",
		Flags:     fs,
		Exec: a.withService(func(ctx context.Context, cfg expense.Config, svc *expense.Service, args []string) error {
			if err := requireArgs(args, 1, "verify <ID>"); err != nil {
				return err
			}
			record, err := svc.Verify(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s verified\n", record.ID)
			return nil
		}),
	}
}

func (a *app) deleteCommand() *ff.Command {
	fs := ff.NewFlagSet("delete").SetParent(a.root)
	return &ff.Command{
		Name:      "delete",
		Usage:     "expense-ledger delete <ID>",
		ShortHelp: "Delete records matching an id prefix",
		Flags:     fs,
		Exec: a.withService(func(ctx context.Context, cfg expense.Config, svc *expense.Service, args []string) error {
			if err := requireArgs(args, 1, "delete <ID>"); err != nil {
				return err
			}
			if err := svc.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted %s\n", args[0])
			return nil
		}),
	}
}

func (a *app) categoriesCommand() *ff.Command {
	fs := ff.NewFlagSet("categories").SetParent(a.root)
	return &ff.Command{
		Name:      "categories",
		Usage:     "expense-ledger categories",
		ShortHelp: "List the bookkeeping accounts",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			return renderAccounts(a.out, expense.Accounts())
		},
	}
}

func (a *app) exportCommand() *ff.Command {
	fs := ff.NewFlagSet("export").SetParent(a.root)
	filters := registerFilterFlags(fs)
	format := fs.StringLong("format", "csv", "Output format: 'csv' or 'xlsx'")
	output := fs.StringLong("output", "", "Output file (default stdout, required for xlsx)")
	return &ff.Command{
		Name:      "export",
		Usage:     "expense-ledger export [FLAGS]",
		ShortHelp: "Export records as CSV or XLSX",
		Flags:     fs,
		Exec: a.withService(func(ctx context.Context, cfg expense.Config, svc *expense.Service, args []string) error {
			f := expense.Format(*format)
			if f != expense.FormatCSV && f != expense.FormatXLSX {
				return fmt.Errorf("unsupported format %q", *format)
			}

			var w io.Writer = a.out
			if *output != "" {
				file, err := os.Create(*output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", *output, err)
				}
				defer file.Close()
				w = file
			} else if f == expense.FormatXLSX {
				return errors.New("--output is required for xlsx")
			}

			n, err := svc.Export(w, filters.filter(), f)
			if err != nil {
				return err
			}
			if *output != "" {
				fmt.Fprintf(a.out, "Exported %d records to %s\n", n, *output)
			}
			return nil
		}),
	}
}

func (a *app) reportCommand() *ff.Command {
	fs := ff.NewFlagSet("report").SetParent(a.root)
	filters := registerFilterFlags(fs)
	return &ff.Command{
		Name:      "report",
		Usage:     "expense-ledger report [FLAGS]",
		ShortHelp: "Totals per bookkeeping account and currency",
		Flags:     fs,
		Exec: a.withService(func(ctx context.Context, cfg expense.Config, svc *expense.Service, args []string) error {
			summaries, err := svc.Summary(filters.filter())
			if err != nil {
				return err
			}
			return renderSummary(a.out, summaries)
		}),
	}
}

func (a *app) vatReportCommand() *ff.Command {
	fs := ff.NewFlagSet("vat-report").SetParent(a.root)
	filters := registerFilterFlags(fs)
	return &ff.Command{
		Name:      "vat-report",
		Usage:     "expense-ledger vat-report [FLAGS]",
		ShortHelp: "Totals per VAT rate and currency",
		Flags:     fs,
		Exec: a.withService(func(ctx context.Context, cfg expense.Config, svc *expense.Service, args []string) error {
			summaries, err := svc.VAT(filters.filter())
			if err != nil {
				return err
			}
			return renderVAT(a.out, summaries)
		}),
	}
}

func (a *app) failuresCommand() *ff.Command {
	fs := ff.NewFlagSet("failures").SetParent(a.root)
	return &ff.Command{
		Name:      "failures",
		Usage:     "expense-ledger failures",
		ShortHelp: "List documents that could not be extracted",
		Flags:     fs,
		Exec: a.withService(func(ctx context.Context, cfg expense.Config, svc *expense.Service, args []string) error {
			failures, err := svc.Failures()
			if err != nil {
				return err
			}
			return renderFailures(a.out, failures)
		}),
	}
}

func (a *app) rebuildCommand() *ff.Command {
	fs := ff.NewFlagSet("rebuild").SetParent(a.root)
	return &ff.Command{
		Name:      "rebuild",
		Usage:     "expense-ledger rebuild",
		ShortHelp: "Regenerate monthly partitions and CSV mirrors from the ledger",
		Flags:     fs,
		Exec: func(ctx context.Context, args []string) error {
			setupLogging(*a.flags.debug)
			store, err := expense.NewLocalStore(a.flags.config().DataDir)
			if err != nil {
				return fmt.Errorf("initializing storage: %w", err)
			}
			if err := store.Rebuild(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Rebuilt views in %s\n", store.Dir())
			return nil
		},
	}
}

func (a *app) watchCommand() *ff.Command {
	fs := ff.NewFlagSet("watch").SetParent(a.root)
	recursive := fs.BoolLong("recursive", "Watch subdirectories too")
	noFile := fs.BoolLong("no-file", "Leave documents where they are")
	return &ff.Command{
		Name:      "watch",
		Usage:     "expense-ledger watch [FLAGS] <DIR>",
		ShortHelp: "Process documents as they appear in a directory",
		Flags:     fs,
		Exec: a.withService(func(ctx context.Context, cfg expense.Config, svc *expense.Service, args []string) error {
			if err := requireArgs(args, 1, "watch <DIR>"); err != nil {
				return err
			}
			w, err := watcher.New(watcher.Config{Dir: args[0], Recursive: *recursive, Debounce: cfg.Debounce})
			if err != nil {
				return err
			}

			opts := expense.ProcessOptions{BaseDir: args[0], Recursive: *recursive, NoFile: *noFile}
			return w.Run(ctx, func(ctx context.Context, path string) {
				outcome, err := svc.ProcessFile(ctx, path, opts)
				if err != nil {
					slog.Error("Failed to process document", "path", path, "error", err)
					return
				}
				logOutcome(outcome)
			})
		}),
	}
}

func (a *app) serveCommand() *ff.Command {
	fs := ff.NewFlagSet("serve").SetParent(a.root)
	port := fs.IntLong("port", 8080, "Port to listen on")
	authUser := fs.StringLong("auth-user", "", "Basic auth username (optional)")
	authPass := fs.StringLong("auth-pass", "", "Basic auth password (optional)")
	return &ff.Command{
		Name:      "serve",
		Usage:     "expense-ledger serve [FLAGS]",
		ShortHelp: "Serve the HTTP API",
		Flags:     fs,
		Exec: a.withService(func(ctx context.Context, cfg expense.Config, svc *expense.Service, args []string) error {
			if err := os.MkdirAll(cfg.InboxDir(), 0755); err != nil {
				return fmt.Errorf("creating inbox: %w", err)
			}
			server := expense.NewServer(svc, expense.BasicAuth{Username: *authUser, Password: *authPass}, cfg.InboxDir())

			addr := fmt.Sprintf(":%d", *port)
			slog.Info("Server starting", "addr", addr, "data_dir", cfg.DataDir, "auth", *authUser != "")
			return server.Start(ctx, addr)
		}),
	}
}

func logOutcome(o expense.Outcome) {
	switch o.Result {
	case expense.ResultProcessed:
		slog.Info("Processed document", "path", o.Path, "id", o.Expense.ID, "vendor", o.Expense.Vendor, "status", o.Expense.Status)
	case expense.ResultSkipped:
		slog.Info("Skipped document", "path", o.Path, "reason", o.Reason)
	default:
		slog.Warn("Could not extract document", "path", o.Path, "reason", o.Reason)
	}
}
