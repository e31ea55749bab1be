package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datastory/internal/digest"
	"github.com/KaramelBytes/datastory/internal/utils"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List, show or purge stored sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()
		all, err := a.pipe.Sessions.List()
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "(no sessions)")
			return nil
		}
		now := time.Now()
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tDESCRIPTION")
		for _, s := range all {
			status := string(s.Status)
			if s.Expired(now) {
				status += " (expired)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, status, s.CreatedAt.Local().Format(time.DateTime), s.Description)
		}
		return tw.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session's metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()
		s, err := a.pipe.Sessions.Get(args[0])
		if err != nil {
			return err
		}
		b, err := utils.PrettyJSON(s)
		if err != nil {
			return err
		}
		return writeOut(cmd.OutOrStdout(), "", string(b))
	},
}

var sessionsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()
		all, err := a.pipe.Sessions.List()
		if err != nil {
			return err
		}
		// Digests in a shared backend go with their sessions.
		var errs []error
		now := time.Now()
		for _, s := range all {
			if !s.Expired(now) {
				continue
			}
			if err := a.pipe.Digests.Delete(cmd.Context(), s.ID); err != nil && !errors.Is(err, digest.ErrNotFound) {
				logger.Warn("digest not deleted", "session", s.ID, "err", err)
				errs = append(errs, err)
			}
		}
		n, err := a.pipe.Sessions.Purge()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d expired session(s)\n", n)
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsPurgeCmd)
}
