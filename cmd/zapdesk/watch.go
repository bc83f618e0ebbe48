package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/foxzi/zapdesk/internal/app"
	"github.com/foxzi/zapdesk/internal/campaign"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live campaign progress",
	RunE:  withApp(runWatch),
}

var watchJSON bool

func init() {
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Print updates as JSON lines")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string, a *app.App) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	live, err := a.StartLive(ctx)
	if err != nil {
		return err
	}
	defer live.Socket.Close()
	defer live.Reconciler.Unbind()

	updates, unsubscribe := live.Reconciler.Subscribe()
	defer unsubscribe()

	go live.Reconciler.Run(ctx)

	printUpdate(campaign.Update{Kind: campaign.UpdateCampaigns, Campaigns: live.Reconciler.Snapshot()})

	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if watchJSON {
				if err := enc.Encode(u); err != nil {
					return err
				}
				continue
			}
			printUpdate(u)
		}
	}
}

func printUpdate(u campaign.Update) {
	switch u.Kind {
	case campaign.UpdateCampaigns:
		for i := range u.Campaigns {
			c := &u.Campaigns[i]
			fmt.Printf("%-12s %-30s %-10s %d/%d (%.0f%%)\n", c.ID, c.Name, c.Status, c.Sent, c.Total, c.Progress())
		}
	case campaign.UpdateNotifications:
		for _, n := range u.Notifications {
			fmt.Printf("! campaign %s: %s\n", n.CampaignID, n.Message)
		}
	case campaign.UpdateConnection:
		fmt.Printf("* socket %s\n", u.Connection)
	case campaign.UpdateEvent:
		if u.Event != nil {
			fmt.Printf("> %s %s\n", u.Event.Name, u.Event.Payload)
		}
	}
}
