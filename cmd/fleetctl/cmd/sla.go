package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/rpaflow/fleetcore/pkg/scheduler"
)

var (
	slaSchedule    string
	slaWindowHours int
)

var slaCmd = &cobra.Command{
	Use:   "sla",
	Short: "Show per-schedule SLA compliance",
	RunE:  runSLA,
}

func init() {
	slaCmd.Flags().StringVar(&slaSchedule, "schedule", "", "report a single schedule id")
	slaCmd.Flags().IntVar(&slaWindowHours, "window-hours", 0, "override the rolling window")
	rootCmd.AddCommand(slaCmd)
}

func runSLA(cmd *cobra.Command, args []string) error {
	query := url.Values{}
	if slaSchedule != "" {
		query.Set("schedule_id", slaSchedule)
	}
	if slaWindowHours > 0 {
		query.Set("window_hours", fmt.Sprintf("%d", slaWindowHours))
	}
	path := "/schedules/sla"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	status, body, err := apiRequest(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", status, string(body))
	}

	var report []*scheduler.ScheduleSLA
	if err := json.Unmarshal(body, &report); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		output, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Schedule", "Status", "Success Rate", "Target", "Avg Duration", "Runs", "Streak")
	for _, s := range report {
		table.Append(s.Name, string(s.Status),
			fmt.Sprintf("%.1f%%", s.SuccessRate), fmt.Sprintf("%.1f%%", s.TargetSuccessRate),
			s.AvgDuration.String(), fmt.Sprintf("%d", s.Runs), fmt.Sprintf("%d", s.CurrentStreak))
	}
	table.Render()
	return nil
}
