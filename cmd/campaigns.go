package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ekemper/leadGen-sub001/internal/database"
	"github.com/ekemper/leadGen-sub001/internal/domain"
)

const campaignsCmdTimeout = 30 * time.Second

func campaignsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaigns",
		Short: "Inspect campaigns",
	}
	cmd.AddCommand(campaignsListCommand())
	cmd.AddCommand(campaignsJobsCommand())
	return cmd
}

func campaignsListCommand() *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List campaigns in a table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := database.NewPostgresConnection(cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to postgres: %w", err)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), campaignsCmdTimeout)
			defer cancel()

			repo := database.NewCampaignRepository(db)
			var campaigns []*domain.Campaign
			if status != "" {
				campaigns, err = repo.ListByStatus(ctx, domain.CampaignStatus(status))
			} else {
				campaigns, err = repo.List(ctx, limit, 0)
			}
			if err != nil {
				return fmt.Errorf("failed to list campaigns: %w", err)
			}

			if len(campaigns) == 0 {
				fmt.Println("no campaigns found")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Name", "Status", "Records", "Message", "Created"})
			for _, c := range campaigns {
				message := c.StatusMessage
				if message == nil {
					empty := ""
					message = &empty
				}
				t.AppendRow(table.Row{
					c.ID,
					c.Name,
					string(c.Status),
					c.TotalRecords,
					*message,
					c.CreatedAt.Format(time.RFC3339),
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (created, running, paused, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum campaigns to list")
	return cmd
}

func campaignsJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs <campaign-id>",
		Short: "List a campaign's jobs in a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := database.NewPostgresConnection(cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to postgres: %w", err)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), campaignsCmdTimeout)
			defer cancel()

			repo := database.NewJobRepository(db)
			jobs, err := repo.ListByCampaign(ctx, args[0], "")
			if err != nil {
				return fmt.Errorf("failed to list jobs: %w", err)
			}

			if len(jobs) == 0 {
				fmt.Println("no jobs found")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Type", "Status", "Error", "Created"})
			for _, j := range jobs {
				errMsg := ""
				if j.Error != nil {
					errMsg = *j.Error
				}
				t.AppendRow(table.Row{
					j.ID,
					string(j.Type),
					string(j.Status),
					errMsg,
					j.CreatedAt.Format(time.RFC3339),
				})
			}
			t.Render()
			return nil
		},
	}
	return cmd
}
