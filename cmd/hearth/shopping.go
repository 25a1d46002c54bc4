package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hearthly/hearth/internal/client"
	"github.com/hearthly/hearth/internal/stores"
)

func (c *cli) shoppingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "shopping",
		Aliases: []string{"shop"},
		Short:   "List and change the shopping list",
	}
	cmd.AddCommand(c.shoppingListCmd(), c.shoppingAddCmd(), c.shoppingToggleCmd(), c.shoppingRemoveCmd(), c.shoppingClearCmd())
	return cmd
}

func (c *cli) loadShopping(cmd *cobra.Command) (*client.Runtime, error) {
	rt, err := c.open(cmd.Context())
	if err != nil {
		return nil, err
	}
	if _, err := rt.Shopping.Load(cmd.Context()); err != nil {
		return nil, err
	}
	return rt, nil
}

func itemIDs(rt *client.Runtime) []string {
	list := rt.Shopping.List()
	ids := make([]string, len(list))
	for i, item := range list {
		ids[i] = item.ID
	}
	return ids
}

func (c *cli) shoppingListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the shopping list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.loadShopping(cmd)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tGOT\tQTY\tITEM\tCATEGORY")
			for _, item := range rt.Shopping.List() {
				got := " "
				if item.Purchased {
					got = "x"
				}
				fmt.Fprintf(tw, "%s\t[%s]\t%d\t%s\t%s\n", shortID(item.ID), got, item.Quantity, item.Name, item.Category)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) shoppingAddCmd() *cobra.Command {
	var in stores.ItemInput
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Put an item on the list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.loadShopping(cmd)
			if err != nil {
				return err
			}
			in.Name = args[0]
			item, res, err := rt.Shopping.Add(cmd.Context(), in)
			if err != nil {
				return err
			}
			c.report(fmt.Sprintf("added %d x %s", item.Quantity, item.Name), res)
			return nil
		},
	}
	cmd.Flags().IntVarP(&in.Quantity, "qty", "n", 1, "quantity")
	cmd.Flags().StringVar(&in.Category, "category", "", "aisle or category")
	return cmd
}

func (c *cli) shoppingToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "got ID",
		Aliases: []string{"toggle"},
		Short:   "Toggle whether an item was bought",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.loadShopping(cmd)
			if err != nil {
				return err
			}
			id, err := resolveID(args[0], itemIDs(rt))
			if err != nil {
				return err
			}
			res, err := rt.Shopping.TogglePurchased(cmd.Context(), id)
			if err != nil {
				return err
			}
			item, _ := rt.Shopping.Get(id)
			c.report(fmt.Sprintf("%s purchased: %t", item.Name, item.Purchased), res)
			return nil
		},
	}
}

func (c *cli) shoppingRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"remove"},
		Short:   "Remove an item from the list",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.loadShopping(cmd)
			if err != nil {
				return err
			}
			id, err := resolveID(args[0], itemIDs(rt))
			if err != nil {
				return err
			}
			res, err := rt.Shopping.Remove(cmd.Context(), id)
			if err != nil {
				return err
			}
			c.report("removed "+shortID(id), res)
			return nil
		},
	}
}

func (c *cli) shoppingClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-purchased",
		Short: "Drop every purchased item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.loadShopping(cmd)
			if err != nil {
				return err
			}
			n, res, err := rt.Shopping.ClearPurchased(cmd.Context())
			if err != nil {
				return err
			}
			c.report(fmt.Sprintf("cleared %d purchased item(s)", n), res)
			return nil
		},
	}
}
