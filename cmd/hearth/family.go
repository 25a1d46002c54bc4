package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hearthly/hearth/internal/client"
	"github.com/hearthly/hearth/internal/stores"
)

func (c *cli) familyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "family",
		Short: "List and change family members",
	}
	cmd.AddCommand(c.familyListCmd(), c.familyAddCmd(), c.familyEarnCmd(), c.familyRemoveCmd())
	return cmd
}

func (c *cli) loadFamily(cmd *cobra.Command) (*client.Runtime, error) {
	rt, err := c.open(cmd.Context())
	if err != nil {
		return nil, err
	}
	if _, err := rt.Family.Load(cmd.Context()); err != nil {
		return nil, err
	}
	return rt, nil
}

// memberID accepts a member name or an id prefix.
func memberID(rt *client.Runtime, arg string) (string, error) {
	if m, ok := rt.Family.Find(arg); ok {
		return m.ID, nil
	}
	list := rt.Family.List()
	ids := make([]string, len(list))
	for i, m := range list {
		ids[i] = m.ID
	}
	return resolveID(arg, ids)
}

func (c *cli) familyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List family members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.loadFamily(cmd)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tROLE\tEARNINGS")
			for _, m := range rt.Family.List() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", shortID(m.ID), m.Name, m.Role, formatCents(m.Earnings))
			}
			return tw.Flush()
		},
	}
}

func (c *cli) familyAddCmd() *cobra.Command {
	var in stores.MemberInput
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a family member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.loadFamily(cmd)
			if err != nil {
				return err
			}
			in.Name = args[0]
			member, res, err := rt.Family.Add(cmd.Context(), in)
			if err != nil {
				return err
			}
			c.report(fmt.Sprintf("added %s (%s)", member.Name, member.Role), res)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Role, "role", "", "parent or child (default child)")
	cmd.Flags().StringVar(&in.Color, "color", "", "display colour")
	return cmd
}

func (c *cli) familyEarnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "earn MEMBER CENTS",
		Short: "Add to (or, with a negative amount, pay out of) a member's earnings",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.loadFamily(cmd)
			if err != nil {
				return err
			}
			id, err := memberID(rt, args[0])
			if err != nil {
				return err
			}
			delta, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("amount must be whole cents: %w", err)
			}
			res, err := rt.Family.AdjustEarnings(cmd.Context(), id, delta)
			if err != nil {
				return err
			}
			member, _ := rt.Family.Get(id)
			c.report(fmt.Sprintf("%s now has %s", member.Name, formatCents(member.Earnings)), res)
			return nil
		},
	}
}

func (c *cli) familyRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm MEMBER",
		Short: "Remove a family member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.loadFamily(cmd)
			if err != nil {
				return err
			}
			id, err := memberID(rt, args[0])
			if err != nil {
				return err
			}
			res, err := rt.Family.Remove(cmd.Context(), id)
			if err != nil {
				return err
			}
			c.report("removed "+shortID(id), res)
			return nil
		},
	}
}
