package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/updrive-io/updrive/internal/updater"
)

// newStatusCommand queries a running agent's status surface and renders the
// snapshot for humans.
func newStatusCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running agent's update status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(fmt.Sprintf("http://%s/v1/status", addr))
			if err != nil {
				return fmt.Errorf("query agent at %s: %w", addr, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("agent returned %s", resp.Status)
			}

			var snap updater.Snapshot
			if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}

			table := uitable.New()
			table.AddRow("STATUS", snap.StatusName)
			table.AddRow("NEW VERSION", snap.NewVersion)
			table.AddRow("PAYLOAD SIZE", fmt.Sprintf("%d", snap.NewPayloadSize))
			table.AddRow("DOWNLOAD PROGRESS", fmt.Sprintf("%.1f%%", snap.DownloadProgress*100))
			lastChecked := "never"
			if snap.LastCheckedTime > 0 {
				lastChecked = time.Unix(snap.LastCheckedTime, 0).Format(time.RFC3339)
			}
			table.AddRow("LAST CHECKED", lastChecked)

			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8680", "Address of the running agent's status server.")
	return cmd
}
