package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/rpaflow/fleetcore/pkg/models"
	"github.com/rpaflow/fleetcore/pkg/scheduler"
)

var (
	schedName          string
	schedWorkflow      string
	schedType          string
	schedCron          string
	schedInterval      time.Duration
	schedRunAt         string
	schedEvent         string
	schedCalendar      string
	schedBusinessHours bool
	upcomingWithin     time.Duration
	upcomingWorkflow   string
)

var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "Manage schedules",
}

var schedulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all schedules",
	RunE:  runSchedulesList,
}

var schedulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a schedule",
	RunE:  runSchedulesAdd,
}

var schedulesPauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Pause a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return scheduleAction(args[0], "pause")
	},
}

var schedulesResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Resume a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return scheduleAction(args[0], "resume")
	},
}

var schedulesRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, body, err := apiRequest(http.MethodDelete, "/schedules/"+args[0], nil)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("API error (status %d): %s", status, string(body))
		}
		fmt.Printf("Schedule %s removed\n", args[0])
		return nil
	},
}

var schedulesUpcomingCmd = &cobra.Command{
	Use:   "upcoming",
	Short: "Show projected upcoming runs",
	RunE:  runSchedulesUpcoming,
}

var schedulesDepsCmd = &cobra.Command{
	Use:   "dependencies",
	Short: "Show the schedule dependency graph",
	RunE:  runSchedulesDependencies,
}

func init() {
	schedulesAddCmd.Flags().StringVar(&schedName, "name", "", "schedule name")
	schedulesAddCmd.Flags().StringVar(&schedWorkflow, "workflow", "", "workflow id (required)")
	schedulesAddCmd.Flags().StringVar(&schedType, "type", "cron", "schedule type: cron, interval, one_time, event, dependency")
	schedulesAddCmd.Flags().StringVar(&schedCron, "cron", "", "cron expression or alias (e.g. daily)")
	schedulesAddCmd.Flags().DurationVar(&schedInterval, "interval", 0, "interval between runs")
	schedulesAddCmd.Flags().StringVar(&schedRunAt, "run-at", "", "one_time run time (RFC3339)")
	schedulesAddCmd.Flags().StringVar(&schedEvent, "event", "", "event name for event schedules")
	schedulesAddCmd.Flags().StringVar(&schedCalendar, "calendar", "", "business calendar id")
	schedulesAddCmd.Flags().BoolVar(&schedBusinessHours, "business-hours", false, "respect business hours")
	schedulesAddCmd.MarkFlagRequired("workflow")

	schedulesUpcomingCmd.Flags().DurationVar(&upcomingWithin, "within", 24*time.Hour, "projection window")
	schedulesUpcomingCmd.Flags().StringVar(&upcomingWorkflow, "workflow", "", "restrict to one workflow id")

	schedulesCmd.AddCommand(schedulesListCmd, schedulesAddCmd, schedulesPauseCmd,
		schedulesResumeCmd, schedulesRemoveCmd, schedulesUpcomingCmd, schedulesDepsCmd)
	rootCmd.AddCommand(schedulesCmd)
}

func runSchedulesList(cmd *cobra.Command, args []string) error {
	status, body, err := apiRequest(http.MethodGet, "/schedules", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", status, string(body))
	}

	var schedules []*models.Schedule
	if err := json.Unmarshal(body, &schedules); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		output, _ := json.MarshalIndent(schedules, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Name", "Type", "Workflow", "Status", "Runs", "Failures", "Next Run")
	for _, s := range schedules {
		nextRun := "-"
		if !s.NextRun.IsZero() {
			nextRun = s.NextRun.Format(time.RFC3339)
		}
		table.Append(s.ID, s.Name, string(s.Type), s.WorkflowID, string(s.Status),
			fmt.Sprintf("%d", s.RunCount), fmt.Sprintf("%d", s.FailureCount), nextRun)
	}
	table.Render()
	return nil
}

func runSchedulesAdd(cmd *cobra.Command, args []string) error {
	sched := models.Schedule{
		Name:                 schedName,
		WorkflowID:           schedWorkflow,
		Type:                 models.ScheduleType(schedType),
		CronExpr:             schedCron,
		Interval:             schedInterval,
		EventName:            schedEvent,
		CalendarID:           schedCalendar,
		RespectBusinessHours: schedBusinessHours,
	}
	if schedRunAt != "" {
		t, err := time.Parse(time.RFC3339, schedRunAt)
		if err != nil {
			return fmt.Errorf("invalid --run-at: %w", err)
		}
		sched.RunAt = t
	}

	payload, err := json.Marshal(&sched)
	if err != nil {
		return err
	}
	status, body, err := apiRequest(http.MethodPost, "/schedules", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("API error (status %d): %s", status, string(body))
	}

	var created models.Schedule
	if err := json.Unmarshal(body, &created); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		output, _ := json.MarshalIndent(&created, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("ID", created.ID)
	table.Append("Name", created.Name)
	table.Append("Type", string(created.Type))
	table.Append("Workflow", created.WorkflowID)
	table.Append("Status", string(created.Status))
	if !created.NextRun.IsZero() {
		table.Append("Next Run", created.NextRun.Format(time.RFC3339))
	}
	table.Render()
	fmt.Println("\nSchedule created successfully!")
	return nil
}

func scheduleAction(id, action string) error {
	status, body, err := apiRequest(http.MethodPost, "/schedules/"+id+"/"+action, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", status, string(body))
	}
	fmt.Printf("Schedule %s: %s\n", id, action)
	return nil
}

func runSchedulesUpcoming(cmd *cobra.Command, args []string) error {
	path := fmt.Sprintf("/schedules/upcoming?within=%s", upcomingWithin)
	if upcomingWorkflow != "" {
		path += "&workflow_id=" + url.QueryEscape(upcomingWorkflow)
	}
	status, body, err := apiRequest(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", status, string(body))
	}

	var runs []scheduler.UpcomingRun
	if err := json.Unmarshal(body, &runs); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		output, _ := json.MarshalIndent(runs, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("When", "Schedule", "Workflow")
	for _, r := range runs {
		table.Append(r.At.Format(time.RFC3339), r.Name, r.WorkflowID)
	}
	table.Render()
	return nil
}

func runSchedulesDependencies(cmd *cobra.Command, args []string) error {
	status, body, err := apiRequest(http.MethodGet, "/schedules/dependencies", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", status, string(body))
	}

	var graph map[string][]string
	if err := json.Unmarshal(body, &graph); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		output, _ := json.MarshalIndent(graph, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	ids := make([]string, 0, len(graph))
	for id := range graph {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Schedule", "Depends On")
	for _, id := range ids {
		table.Append(id, strings.Join(graph[id], ", "))
	}
	table.Render()
	return nil
}
