package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/session"
)

func renderBar(score float64, width int) string {
	filled := int(score * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(info session.Info) string {
	d, ok := info.Duration()
	if !ok {
		return "open"
	}
	return d.Round(time.Millisecond).String()
}

func formatStarted(t time.Time, now time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

// countTypes tallies events per type.
func countTypes(events []models.Event) map[models.EventType]int {
	counts := make(map[models.EventType]int)
	for _, e := range events {
		counts[e.Type()]++
	}
	return counts
}

// describeEvent renders one event as a single human-readable line.
func describeEvent(e models.Event) string {
	b := e.Base()
	var what string
	switch v := e.(type) {
	case models.InputEvent:
		target := v.AutomationID
		if target == "" {
			target = v.SourceElementName
		}
		what = fmt.Sprintf("%s %s", v.InputType, target)
		if v.NewValue != "" {
			what += fmt.Sprintf(" = %q", v.NewValue)
		}
	case models.CommandEvent:
		what = fmt.Sprintf("%s (%d ms)", v.CommandName, v.ExecutionDurationMs)
		if !v.IsSuccess {
			what += " failed: " + v.ErrorMessage
		}
	case models.APICallEvent:
		what = fmt.Sprintf("%s %s -> %d (%d ms)", v.HTTPMethod, v.RequestURL, v.StatusCode, v.DurationMs)
		if v.ResponseBody != "" {
			what += ", " + humanize.Bytes(uint64(len(v.ResponseBody)))
		}
	case models.NavigationEvent:
		if v.NavigationType == models.NavigationTabChanged {
			what = fmt.Sprintf("tab %q in %s", v.TabHeader, v.ToView)
		} else {
			what = fmt.Sprintf("%s -> %s", v.FromView, v.ToView)
		}
	case models.WindowEvent:
		what = fmt.Sprintf("%s %q", v.WindowEventType, v.WindowTitle)
	}
	return fmt.Sprintf("%4d  %s  %-10s %s", b.SequenceNumber, b.Timestamp.Format("15:04:05.000"), b.EventType, what)
}
