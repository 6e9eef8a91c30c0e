package main

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"graphmem/internal/queue"
	"graphmem/internal/textutil"
	"graphmem/internal/workflow"
)

const (
	recentFailureLimit = 5
	messageWidth       = 80
	displayTimeLayout  = "2006-01-02 15:04:05"
	ellipsis           = "..."
)

var labelCaser = cases.Title(language.English)

// formatLabel turns an identifier such as transcribe_failed into
// "Transcribe Failed".
func formatLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return labelCaser.String(strings.ReplaceAll(value, "_", " "))
}

func formatDisplayTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(displayTimeLayout)
}

func statusRows(counts map[queue.Status]int) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, status := range queue.AllStatuses() {
		rows = append(rows, []string{formatLabel(string(status)), fmt.Sprintf("%d", counts[status])})
	}
	return rows
}

func failureRows(failures []queue.Failure, width int) [][]string {
	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		title := strings.TrimSpace(f.Title)
		if title == "" {
			title = "-"
		}
		message := textutil.NormalizeTypography(f.Message)
		if width > len(ellipsis) {
			message = textutil.Truncate(message, width-len(ellipsis), ellipsis)
		}
		rows = append(rows, []string{
			f.JobID,
			title,
			formatLabel(string(f.Stage)),
			formatDisplayTime(f.Timestamp),
			message,
		})
	}
	return rows
}

func summaryRows(summary workflow.RunSummary) [][]string {
	rows := make([][]string, 0, len(summary.Stages)+1)
	for _, r := range summary.Stages {
		rows = append(rows, []string{
			formatLabel(string(r.Stage)),
			fmt.Sprintf("%d", r.Claimed),
			fmt.Sprintf("%d", r.Succeeded),
			fmt.Sprintf("%d", r.Failed),
			fmt.Sprintf("%d", r.Interrupted),
		})
	}
	total := summary.Totals()
	rows = append(rows, []string{
		"Total",
		fmt.Sprintf("%d", total.Claimed),
		fmt.Sprintf("%d", total.Succeeded),
		fmt.Sprintf("%d", total.Failed),
		fmt.Sprintf("%d", total.Interrupted),
	})
	return rows
}

func jobRows(job *queue.Job) [][]string {
	rows := [][]string{
		{"ID", job.ID},
		{"Title", job.DisplayTitle()},
		{"Source", job.Source.String()},
		{"Status", formatLabel(string(job.Status))},
	}
	if job.Origin != "" {
		rows = append(rows, []string{"Origin", job.Origin})
	}
	for _, s := range queue.All() {
		if ref, ok := job.StageOutputs[s]; ok && ref != "" {
			rows = append(rows, []string{formatLabel(string(s)) + " output", ref})
		}
		if n := job.Attempts[s]; n > 0 {
			rows = append(rows, []string{formatLabel(string(s)) + " attempts", fmt.Sprintf("%d", n)})
		}
	}
	if job.Error != nil {
		rows = append(rows,
			[]string{"Error stage", formatLabel(string(job.Error.Stage))},
			[]string{"Error", job.Error.Message},
			[]string{"Failed at", formatDisplayTime(job.Error.Timestamp)},
		)
	}
	rows = append(rows,
		[]string{"Created", formatDisplayTime(job.CreatedAt)},
		[]string{"Updated", formatDisplayTime(job.UpdatedAt)},
	)
	if job.ClaimedAt != nil {
		rows = append(rows, []string{"Claimed", formatDisplayTime(*job.ClaimedAt)})
	}
	return rows
}
