// Package main provides the callit command line client.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, stdin io.Reader) error {
	a := newApp(stdout, stderr, stdin)
	defer a.close()

	root := &cobra.Command{
		Use:           "callit",
		Short:         "Make predictions, back them, and prove you called it",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log requests to stderr")

	root.AddCommand(
		newLoginCmd(a),
		newRegisterCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newProfilesCmd(a),
		newUseCmd(a),
		newFeedCmd(a),
		newShowCmd(a),
		newThreadCmd(a),
		newPostCmd(a),
		newDeleteCmd(a),
		newVoteCmd(a),
		newBackCmd(a),
		newUnbackCmd(a),
		newReceiptCmd(a),
		newCommentCmd(a),
		newCommentVoteCmd(a),
		newCommentDeleteCmd(a),
		newGroupsCmd(a),
		newSettingsCmd(a),
	)

	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetIn(stdin)
	return root.ExecuteContext(ctx)
}
