package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"snaplink/internal/domain"
	"snaplink/internal/expiry"
)

func newCreateCmd(a *app) *cobra.Command {
	var (
		url     string
		code    string
		minutes int
		owner   string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a short link.",
		Long: `Create a short link for a destination URL.

Example:
  snaplink create --url="https://go.dev/doc" --code=godoc --minutes=120`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, store, err := a.openService()
			if err != nil {
				return err
			}
			defer a.closeStore(store)

			rec, err := svc.CreateLink(cmd.Context(), url, code, minutes, domain.Owner(owner))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (expires %s)\n",
				a.cfg.ShortURL(rec.Code), rec.Destination, rec.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "destination URL (required)")
	cmd.Flags().StringVar(&code, "code", "", "custom short code; generated when empty")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "validity window in minutes; 0 uses DEFAULT_VALIDITY_MINUTES")
	cmd.Flags().StringVar(&owner, "owner", "cli", "owner identity recorded on the link")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List links, newest first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, store, err := a.openService()
			if err != nil {
				return err
			}
			defer a.closeStore(store)

			links, err := svc.ListLinks(cmd.Context(), domain.Owner(owner))
			if err != nil {
				return err
			}
			printLinks(cmd.OutOrStdout(), links, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only list links of this owner")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <code>",
		Short: "Show a link with its full click history.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, store, err := a.openService()
			if err != nil {
				return err
			}
			defer a.closeStore(store)

			rec, err := svc.GetLinkDetail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printDetail(cmd.OutOrStdout(), rec, time.Now())
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <code>",
		Short: "Delete a link and free its code.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, store, err := a.openService()
			if err != nil {
				return err
			}
			defer a.closeStore(store)

			if err := svc.DeleteLink(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newResolveCmd(a *app) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "resolve <code>",
		Short: "Resolve a code now, recording a click when it is live.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, store, err := a.openService()
			if err != nil {
				return err
			}
			defer a.closeStore(store)

			out, err := svc.Resolve(cmd.Context(), args[0], source, time.Now())
			if err != nil {
				return err
			}
			if out.Destination != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", out.Kind, out.Destination)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Kind)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "cli", "click source to record")
	return cmd
}

func printLinks(w io.Writer, links []domain.LinkRecord, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tDESTINATION\tOWNER\tSTATE\tCLICKS\tEXPIRES")
	for _, l := range links {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			l.Code, l.Destination, l.Owner, expiry.Classify(l, now), len(l.Clicks), l.ExpiresAt.Format(time.RFC3339))
	}
	tw.Flush()
}

func printDetail(w io.Writer, rec domain.LinkRecord, now time.Time) {
	fmt.Fprintf(w, "code:        %s\n", rec.Code)
	fmt.Fprintf(w, "destination: %s\n", rec.Destination)
	fmt.Fprintf(w, "owner:       %s\n", rec.Owner)
	fmt.Fprintf(w, "created:     %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "expires:     %s (%s)\n", rec.ExpiresAt.Format(time.RFC3339), expiry.Classify(rec, now))
	fmt.Fprintf(w, "clicks:      %d\n", len(rec.Clicks))
	for _, c := range rec.Clicks {
		fmt.Fprintf(w, "  %s  %s\n", c.Timestamp.Format(time.RFC3339), c.Source)
	}
}
