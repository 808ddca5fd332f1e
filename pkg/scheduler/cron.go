package scheduler

import (
	"fmt"
	"strings"

	cronv3 "github.com/robfig/cron/v3"
)

// CronAliases maps human-readable names to standard 5-field cron
// expressions. Aliases are expanded before parsing.
var CronAliases = map[string]string{
	"every_minute": "* * * * *",
	"hourly":       "0 * * * *",
	"daily":        "0 0 * * *",
	"midnight":     "0 0 * * *",
	"weekly":       "0 0 * * 0",
	"monthly":      "0 0 1 * *",
	"yearly":       "0 0 1 1 *",
	"annually":     "0 0 1 1 *",
	"weekdays":     "0 9 * * 1-5",
	"weekends":     "0 9 * * 0,6",
}

// 5-field parser, minute resolution. Descriptors like @daily are not
// accepted; the alias table is the supported spelling.
var cronParser = cronv3.NewParser(
	cronv3.Minute | cronv3.Hour | cronv3.Dom | cronv3.Month | cronv3.Dow)

// ExpandCronAlias resolves an alias to its cron expression. Unknown
// strings pass through unchanged.
func ExpandCronAlias(expr string) string {
	if expanded, ok := CronAliases[strings.ToLower(strings.TrimSpace(expr))]; ok {
		return expanded
	}
	return expr
}

// ParseCron expands aliases and parses the expression. A malformed
// expression is an error, never silently accepted.
func ParseCron(expr string) (cronv3.Schedule, error) {
	expanded := ExpandCronAlias(expr)
	schedule, err := cronParser.Parse(expanded)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}
