package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hearthly/hearth/internal/client"
	"github.com/hearthly/hearth/internal/stores"
)

func (c *cli) choresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "chores",
		Aliases: []string{"chore"},
		Short:   "List and change household chores",
	}
	cmd.AddCommand(c.choresListCmd(), c.choresAddCmd(), c.choresDoneCmd(), c.choresAssignCmd(), c.choresRemoveCmd())
	return cmd
}

// loadChores opens the runtime and loads chores and family, the latter for names.
func (c *cli) loadChores(cmd *cobra.Command) (*client.Runtime, error) {
	rt, err := c.open(cmd.Context())
	if err != nil {
		return nil, err
	}
	if _, err := rt.Chores.Load(cmd.Context()); err != nil {
		return nil, err
	}
	if _, err := rt.Family.Load(cmd.Context()); err != nil {
		return nil, err
	}
	return rt, nil
}

func choreIDs(rt *client.Runtime) []string {
	list := rt.Chores.List()
	ids := make([]string, len(list))
	for i, ch := range list {
		ids[i] = ch.ID
	}
	return ids
}

func (c *cli) choresListCmd() *cobra.Command {
	var pending bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List chores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.loadChores(cmd)
			if err != nil {
				return err
			}
			list := rt.Chores.List()
			if pending {
				list = rt.Chores.Pending()
			}
			names := map[string]string{}
			for _, m := range rt.Family.List() {
				names[m.ID] = m.Name
			}

			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDONE\tTITLE\tASSIGNED\tPOINTS\tREWARD\tDUE")
			for _, ch := range list {
				done := " "
				if ch.Completed {
					done = "x"
				}
				assigned := "-"
				if ch.AssignedTo != nil {
					assigned = names[*ch.AssignedTo]
					if assigned == "" {
						assigned = shortID(*ch.AssignedTo)
					}
				}
				due := "-"
				if ch.DueDate != nil {
					due = ch.DueDate.Local().Format("Mon 02 Jan")
				}
				fmt.Fprintf(tw, "%s\t[%s]\t%s\t%s\t%d\t%s\t%s\n",
					shortID(ch.ID), done, ch.Title, assigned, ch.Points, formatCents(ch.Reward), due)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&pending, "pending", false, "only chores that are not done")
	return cmd
}

func (c *cli) choresAddCmd() *cobra.Command {
	var (
		in     stores.ChoreInput
		assign string
		due    string
	)
	cmd := &cobra.Command{
		Use:   "add TITLE",
		Short: "Add a chore",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.loadChores(cmd)
			if err != nil {
				return err
			}
			in.Title = args[0]
			if assign != "" {
				member, ok := rt.Family.Find(assign)
				if !ok {
					return fmt.Errorf("no family member named %q", assign)
				}
				in.AssignedTo = &member.ID
			}
			if due != "" {
				at, err := time.ParseInLocation(time.DateOnly, due, time.Local)
				if err != nil {
					return fmt.Errorf("due date must look like 2006-01-02: %w", err)
				}
				in.DueDate = &at
			}
			chore, res, err := rt.Chores.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			c.report(fmt.Sprintf("added chore %s %q", shortID(chore.ID), chore.Title), res)
			return nil
		},
	}
	cmd.Flags().IntVar(&in.Points, "points", 0, "points awarded when done")
	cmd.Flags().Int64Var(&in.Reward, "reward", 0, "reward in cents")
	cmd.Flags().StringVar(&assign, "assign", "", "family member name")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	return cmd
}

func (c *cli) choresDoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "done ID",
		Short: "Toggle whether a chore is done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.loadChores(cmd)
			if err != nil {
				return err
			}
			id, err := resolveID(args[0], choreIDs(rt))
			if err != nil {
				return err
			}
			res, err := rt.Chores.ToggleComplete(cmd.Context(), id)
			if err != nil {
				return err
			}
			chore, _ := rt.Chores.Get(id)
			state := "not done"
			if chore.Completed {
				state = "done"
			}
			c.report(fmt.Sprintf("%q marked %s", chore.Title, state), res)
			return nil
		},
	}
}

func (c *cli) choresAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign ID [MEMBER]",
		Short: "Assign a chore to a family member, or unassign it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.loadChores(cmd)
			if err != nil {
				return err
			}
			id, err := resolveID(args[0], choreIDs(rt))
			if err != nil {
				return err
			}
			memberID, who := "", "nobody"
			if len(args) == 2 {
				member, ok := rt.Family.Find(args[1])
				if !ok {
					return fmt.Errorf("no family member named %q", args[1])
				}
				memberID, who = member.ID, member.Name
			}
			res, err := rt.Chores.Assign(cmd.Context(), id, memberID)
			if err != nil {
				return err
			}
			c.report(fmt.Sprintf("chore %s assigned to %s", shortID(id), who), res)
			return nil
		},
	}
}

func (c *cli) choresRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"remove", "delete"},
		Short:   "Delete a chore",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.loadChores(cmd)
			if err != nil {
				return err
			}
			id, err := resolveID(args[0], choreIDs(rt))
			if err != nil {
				return err
			}
			res, err := rt.Chores.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			c.report(fmt.Sprintf("deleted chore %s", shortID(id)), res)
			return nil
		},
	}
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
