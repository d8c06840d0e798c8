package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/coordinator"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/query"
	"github.com/roach88/strata/internal/stage"
)

// FetchOptions holds flags for the fetch command.
type FetchOptions struct {
	*RootOptions
	Where string
	Sort  []string
	Limit int
}

// DeleteOptions holds flags for the delete and purge commands.
type DeleteOptions struct {
	*RootOptions
	Where string
}

// DeleteResult reports how many records a delete removed.
type DeleteResult struct {
	Deleted int `json:"deleted"`
}

func (r DeleteResult) String() string {
	return fmt.Sprintf("%d record(s) deleted", r.Deleted)
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "insert <kind> key=value...",
		Short: "Insert a record and save it",
		Long: `Insert one record of the given kind into the primary context and save it
to the store.

Values are JSON literals (numbers, true/false, null, quoted strings, arrays,
objects); anything else is taken as a bare string.

Example:
  strata insert Order total=10 status=open
  strata insert Order 'tags=["a","b"]' --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsert(rootOpts, args[0], args[1:], cmd)
		},
	}
}

func runInsert(opts *RootOptions, kind string, assignments []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	fields, err := parseAssignments(assignments)
	if err != nil {
		return out.Fail("invalid field", NewExitError(ExitCommandError, err.Error()))
	}

	c, err := opts.open(cmd)
	if err != nil {
		return out.Fail("open", err)
	}
	defer closeQuietly(c)

	ctx := commandContext(cmd)
	rec, err := c.Insert(ctx, kind, fields, coordinator.Primary)
	if err != nil {
		return out.Fail("insert", err)
	}
	if err := c.Save(ctx, coordinator.Primary); err != nil {
		return out.Fail("save", err)
	}

	return out.Success([]RecordView{view(rec)})
}

// parseAssignments parses key=value arguments into record fields.
func parseAssignments(assignments []string) (ir.Object, error) {
	fields := make(ir.Object, len(assignments))
	for _, a := range assignments {
		key, raw, ok := strings.Cut(a, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		v, err := ir.ParseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		fields[key] = v
	}
	return fields, nil
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FetchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fetch <kind>",
		Short: "List records of a kind",
		Long: `List the stored records of a kind, optionally filtered and sorted.

Predicates are expressions over the record's fields.

Example:
  strata fetch Order
  strata fetch Order --where 'total > 10 && status == "open"' --sort total:desc`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "predicate expression")
	cmd.Flags().StringSliceVar(&opts.Sort, "sort", nil, "sort key, field[:asc|desc] (repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of records (0 = no limit)")

	return cmd
}

func runFetch(opts *FetchOptions, kind string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	req := query.Where(kind, opts.Where)
	req.Limit = opts.Limit
	for _, s := range opts.Sort {
		sd, err := query.ParseSort(s)
		if err != nil {
			return out.Fail("invalid sort", NewExitError(ExitCommandError, err.Error()))
		}
		req.Sort = append(req.Sort, sd)
	}
	if err := req.Validate(); err != nil {
		return out.Fail("invalid request", NewExitError(ExitCommandError, err.Error()))
	}

	c, err := opts.open(cmd)
	if err != nil {
		return out.Fail("open", err)
	}
	defer closeQuietly(c)

	recs, err := c.Fetch(commandContext(cmd), req, coordinator.Primary)
	if err != nil {
		return out.Fail("fetch", err)
	}

	views := make([]RecordView, len(recs))
	for i, rec := range recs {
		views[i] = view(rec)
	}
	out.VerboseLog("%d record(s)", len(views))
	return out.Success(views)
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <kind>",
		Short: "Delete matching records through the primary context",
		Long: `Fetch the matching records into the primary context, delete them there
and save. Live queries and other contexts observe the deletion as a normal
commit.

Example:
  strata delete Order --where 'status == "cancelled"'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "predicate expression")

	return cmd
}

func runDelete(opts *DeleteOptions, kind string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	c, err := opts.open(cmd)
	if err != nil {
		return out.Fail("open", err)
	}
	defer closeQuietly(c)

	ctx := commandContext(cmd)
	n, err := c.DeleteAll(ctx, kind, opts.Where, coordinator.Primary)
	if err != nil {
		return out.Fail("delete", err)
	}
	if err := c.Save(ctx, coordinator.Primary); err != nil {
		return out.Fail("save", err)
	}

	return out.Success(DeleteResult{Deleted: n})
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "purge <kind>",
		Short: "Delete matching records directly in the store",
		Long: `Delete the matching records in one store transaction, bypassing the
staging contexts. Prints the deleted identities.

Example:
  strata purge Session --where 'expired'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Where, "where", "w", "", "predicate expression")

	return cmd
}

func runPurge(opts *DeleteOptions, kind string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	c, err := opts.open(cmd)
	if err != nil {
		return out.Fail("open", err)
	}
	defer closeQuietly(c)

	ids, err := c.DeleteDirectFromStore(commandContext(cmd), kind, opts.Where, coordinator.Primary)
	if err != nil {
		return out.Fail("purge", err)
	}
	return out.Success(ids)
}

func view(rec *stage.Record) RecordView {
	row := rec.Row()
	return RecordView{ID: row.ID, Kind: row.Kind, Seq: row.Seq, Fields: row.Fields}
}
