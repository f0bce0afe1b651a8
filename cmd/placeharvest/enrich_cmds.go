package main

import (
	"fmt"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/manthysbr/placeharvest/internal/core/domain"
	"github.com/manthysbr/placeharvest/internal/core/services"
)

func newEnrichCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Manage the website enrichment backlog",
	}
	cmd.AddCommand(newEnrichAddCmd(c), newEnrichPendingCmd(c))
	return cmd
}

func newEnrichAddCmd(c *cli) *cobra.Command {
	var placeID, website string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Queue a place's website for enrichment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pid, err := domain.NewPlaceID(placeID)
			if err != nil {
				return err
			}
			if u, err := url.ParseRequestURI(website); err != nil || u.Host == "" {
				return fmt.Errorf("%w: website must be an absolute URL", domain.ErrValidation)
			}
			return c.withApp(cmd, func(a *app) error {
				task := domain.NewWebsiteEnrichmentTask(pid, website)
				if err := a.repo.SaveEnrichmentTask(cmd.Context(), task); err != nil {
					return err
				}
				a.logger.Info("enrichment task queued", "task_id", task.ID, "place_id", pid)
				fmt.Fprintln(cmd.OutOrStdout(), task.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&placeID, "place-id", "", "provider place id")
	cmd.Flags().StringVar(&website, "url", "", "website to enrich from")
	_ = cmd.MarkFlagRequired("place-id")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func newEnrichPendingCmd(c *cli) *cobra.Command {
	var maxAttempts int
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Load the enrichment dispatcher and list what it would hand out",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(a *app) error {
				dispatcher := services.NewEnrichmentTaskDispatcher(a.logger, a.repo, a.metrics)
				loaded, err := dispatcher.LoadTasks(cmd.Context(), maxAttempts)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "%d enrichment tasks claimable\n\n", loaded)
				fmt.Fprintln(tw, "TASK\tSTATUS\tATTEMPTS\tPLACE\tURL")
				for {
					id, ok := dispatcher.ClaimNext()
					if !ok {
						break
					}
					t, err := a.repo.GetEnrichmentTask(cmd.Context(), id)
					if err != nil {
						return err
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", t.ID, t.Status, t.Attempts, t.PlaceID, t.WebsiteURL)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", domain.DefaultMaxAttempts, "skip failed tasks with this many attempts")
	return cmd
}
