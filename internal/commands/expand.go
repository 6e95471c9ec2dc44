package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"calendartask/internal/app"
	"calendartask/internal/models"
	"calendartask/internal/services"
)

var (
	expandTaskID   int64
	expandType     string
	expandInterval int
	expandUntil    string
)

var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Generate the instances of a recurring task",
	Long: `expand stores one instance per occurrence of the task's recurrence, up to
its end date (or one year after the task's start). Flags override the task's
own rule for this run only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var req services.ExpandRequest
		if cmd.Flags().Changed("type") {
			typ, ok := models.ParseRecurrenceType(expandType)
			if !ok {
				return fmt.Errorf("invalid --type %q", expandType)
			}
			req.Type = &typ
		}
		if cmd.Flags().Changed("interval") {
			n := expandInterval
			req.Interval = &n
		}
		if expandUntil != "" {
			until, err := parseUntil(expandUntil)
			if err != nil {
				return fmt.Errorf("invalid --until %q: %w", expandUntil, err)
			}
			req.EndDate = &until
		}

		cfg, log, err := loadRuntime()
		if err != nil {
			return err
		}
		defer log.Sync()

		store, err := app.OpenStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		svc, redisClient, err := app.NewTaskService(cmd.Context(), cfg, store, log)
		if err != nil {
			return err
		}
		if redisClient != nil {
			defer redisClient.Close()
		}

		instances, err := svc.ExpandRecurrence(cmd.Context(), expandTaskID, req)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✅ Created %d instance(s) of task #%d\n", len(instances), expandTaskID)
		for _, t := range instances {
			fmt.Fprintf(out, "  #%-6d %s  %s\n", t.ID, t.StartTime.Format("2006-01-02 15:04"), t.Title)
		}
		return nil
	},
}

func parseUntil(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	// a bare date covers the whole day
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.AddDate(0, 0, 1).Add(-time.Second), nil
}

func init() {
	expandCmd.Flags().Int64Var(&expandTaskID, "task", 0, "origin task id")
	expandCmd.Flags().StringVar(&expandType, "type", "", "DAILY, WEEKLY, MONTHLY or YEARLY")
	expandCmd.Flags().IntVar(&expandInterval, "interval", 1, "step between occurrences")
	expandCmd.Flags().StringVar(&expandUntil, "until", "", "end date (yyyy-MM-dd, yyyy-MM-dd HH:mm:ss or RFC3339)")
	expandCmd.MarkFlagRequired("task")
}
