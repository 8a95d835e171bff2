package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/callingitnow/callit/internal/client"
	"github.com/callingitnow/callit/internal/display"
	"github.com/callingitnow/callit/internal/model"
)

func newGroupsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "groups",
		Aliases: []string{"group"},
		Short:   "Browse and manage groups",
	}
	cmd.AddCommand(
		newGroupsListCmd(a),
		newGroupsShowCmd(a),
		newGroupsCreateCmd(a),
		newGroupsMembershipCmd(a, "join"),
		newGroupsMembershipCmd(a, "leave"),
		newGroupsDeleteCmd(a),
	)
	return cmd
}

func newGroupsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List groups you can see",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			groups, err := a.api.ListGroups(cmd.Context())
			if err != nil {
				return viewError(err, "groups")
			}
			if len(groups) == 0 {
				fmt.Fprintln(a.out, "No groups yet.")
				return nil
			}
			for _, g := range groups {
				fmt.Fprintf(a.out, "#%-5d %-30s %-8s %3d members%s\n", g.ID, a.filter.Content(g.Name), g.Visibility, g.MemberCount, membership(g))
			}
			return nil
		},
	}
}

func membership(g model.Group) string {
	switch {
	case g.IsOwner:
		return " (owner)"
	case g.IsMember:
		return " (member)"
	}
	return ""
}

func newGroupsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <group-id>",
		Short: "Show a group and the calls made in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var (
				g        model.Group
				calls    model.PredictionList
				callsErr error
			)
			eg, ctx := errgroup.WithContext(cmd.Context())
			eg.Go(func() error {
				var err error
				g, err = a.api.GetGroup(ctx, id)
				return err
			})
			eg.Go(func() error {
				calls, callsErr = a.api.ListGroupPredictions(ctx, id)
				return nil
			})
			if err := eg.Wait(); err != nil {
				return viewError(err, "group")
			}
			a.printGroup(g)
			fmt.Fprintln(a.out, "\nCalls")
			switch {
			case client.IsForbidden(callsErr):
				fmt.Fprintln(a.out, "Join this group to see its calls.")
			case callsErr != nil:
				fmt.Fprintln(a.out, "Failed to load calls.")
			default:
				a.printList(a.out, calls)
			}
			return nil
		},
	}
}

func (a *app) printGroup(g model.Group) {
	fmt.Fprintf(a.out, "%s%s\n", a.filter.Content(g.Name), membership(g))
	fmt.Fprintf(a.out, "%s · %d members · created by @%s %s\n",
		g.Visibility, g.MemberCount, g.Creator.Handle, display.TimeAgo(g.CreatedAt.Time, a.now()))
	fmt.Fprintf(a.out, "\n%s\n", a.filter.Content(g.Description))
}

func newGroupsCreateCmd(a *app) *cobra.Command {
	var in model.CreateGroupInput
	var visibility string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireSignIn(); err != nil {
				return err
			}
			in.Visibility = model.GroupVisibility(visibility)
			g, err := a.api.CreateGroup(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("%s", client.DetailOr(err, "Failed to create group."))
			}
			fmt.Fprintf(a.out, "Created group #%d %s\n", g.ID, g.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&in.Name, "name", "n", "", "Group name")
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "What the group is about")
	cmd.Flags().StringVar(&visibility, "visibility", string(model.GroupPublic), "public, private or secret")
	return cmd
}

// newGroupsMembershipCmd builds join and leave. Both re-read the group from
// the server afterwards instead of adjusting counts locally.
func newGroupsMembershipCmd(a *app, verb string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <group-id>",
		Short: map[string]string{"join": "Join a group", "leave": "Leave a group"}[verb],
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.requireSignIn(); err != nil {
				return err
			}
			call := a.api.JoinGroup
			if verb == "leave" {
				call = a.api.LeaveGroup
			}
			if err := call(ctx, id); err != nil {
				return fmt.Errorf("%s", client.DetailOr(err, "Failed to "+verb+" group."))
			}
			g, err := a.api.GetGroup(ctx, id)
			if err != nil {
				if verb == "leave" && client.IsNotFound(err) {
					fmt.Fprintf(a.out, "Left group #%d\n", id)
					return nil
				}
				return viewError(err, "group")
			}
			a.printGroup(g)
			return nil
		},
	}
}

func newGroupsDeleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <group-id>",
		Short: "Delete a group you own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.requireSignIn(); err != nil {
				return err
			}
			g, err := a.api.GetGroup(ctx, id)
			if err != nil {
				return viewError(err, "group")
			}
			if !g.IsOwner {
				return fmt.Errorf("only the owner can delete %s", g.Name)
			}
			if !yes && !a.confirm("Are you sure you want to delete this group?") {
				fmt.Fprintln(a.out, "Cancelled.")
				return nil
			}
			if err := a.api.DeleteGroup(ctx, id); err != nil {
				return fmt.Errorf("%s", client.DetailOr(err, "Failed to delete group."))
			}
			fmt.Fprintf(a.out, "Deleted group #%d\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation")
	return cmd
}
