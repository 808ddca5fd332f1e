package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/rpaflow/fleetcore/pkg/models"
)

var (
	assignWorkflow string
	assignAffinity string
	assignTags     []string
)

var robotsCmd = &cobra.Command{
	Use:   "robots",
	Short: "Manage robots",
}

var robotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered robots",
	RunE:  runRobotsList,
}

var robotsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Deregister a robot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, body, err := apiRequest(http.MethodDelete, "/robots/"+args[0], nil)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("API error (status %d): %s", status, string(body))
		}
		fmt.Printf("Robot %s removed\n", args[0])
		return nil
	},
}

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Run a test assignment against the current fleet",
	RunE:  runAssign,
}

func init() {
	robotsCmd.AddCommand(robotsListCmd, robotsRemoveCmd)
	rootCmd.AddCommand(robotsCmd)

	assignCmd.Flags().StringVar(&assignWorkflow, "workflow", "", "workflow id (required)")
	assignCmd.Flags().StringVar(&assignAffinity, "affinity", "", "affinity level: none, soft, hard, session")
	assignCmd.Flags().StringSliceVar(&assignTags, "tags", nil, "required tags")
	assignCmd.MarkFlagRequired("workflow")
	rootCmd.AddCommand(assignCmd)
}

func runRobotsList(cmd *cobra.Command, args []string) error {
	status, body, err := apiRequest(http.MethodGet, "/robots", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", status, string(body))
	}

	var robots []*models.RobotInfo
	if err := json.Unmarshal(body, &robots); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		output, _ := json.MarshalIndent(robots, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Status", "CPU %", "Mem %", "Jobs", "Env", "Zone", "Tags")
	for _, r := range robots {
		table.Append(r.ID, string(r.Status),
			fmt.Sprintf("%.1f", r.CPUPercent), fmt.Sprintf("%.1f", r.MemoryPercent),
			fmt.Sprintf("%d/%d", r.CurrentJobs, r.MaxConcurrentJobs),
			r.Environment, r.NetworkZone, strings.Join(r.Tags, ","))
	}
	table.Render()
	return nil
}

func runAssign(cmd *cobra.Command, args []string) error {
	request := map[string]interface{}{
		"requirements": models.JobRequirements{
			WorkflowID:   assignWorkflow,
			RequiredTags: assignTags,
		},
		"affinity": assignAffinity,
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return err
	}

	status, body, err := apiRequest(http.MethodPost, "/assign", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if status == http.StatusConflict {
		return fmt.Errorf("no robot available: %s", string(body))
	}
	if status != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", status, string(body))
	}

	// Raw JSON output either way; the result shape depends on whether
	// an affinity level was requested.
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}
