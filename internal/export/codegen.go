package export

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/session"
)

const defaultSuiteName = "RecordedSession"

// stepKind is one generated call kind. stepComment marks an event that is
// not replayable and is emitted as a comment only.
type stepKind int

const (
	stepComment stepKind = iota
	stepEnterText
	stepClick
	stepSelectItem
	stepSetCheckbox
	stepExecuteCommand
	stepSelectTab
)

var stepKinds = []stepKind{stepEnterText, stepClick, stepSelectItem, stepSetCheckbox, stepExecuteCommand, stepSelectTab}

type step struct {
	kind    stepKind
	target  string
	value   string
	checked bool
	comment string
}

type testCase struct {
	number int
	steps  []step
}

func (c testCase) hasCalls() bool {
	for _, s := range c.steps {
		if s.kind != stepComment {
			return true
		}
	}
	return false
}

// codePlan is the target-independent shape of a generated test file.
type codePlan struct {
	suite   string
	session string
	cases   []testCase
	used    map[stepKind]bool
}

func newCodePlan(events []models.Event, info *session.Info) codePlan {
	p := codePlan{suite: defaultSuiteName, used: make(map[stepKind]bool)}
	groupByCorrelation := true
	if info != nil {
		p.suite = identifier(info.Name, defaultSuiteName)
		p.session = info.Name
		groupByCorrelation = info.Configuration.GroupByCorrelation
	}

	for i, group := range groupEvents(sorted(events), groupByCorrelation) {
		tc := testCase{number: i + 1}
		for _, e := range group {
			s := stepFor(e)
			if s.kind != stepComment {
				p.used[s.kind] = true
			}
			tc.steps = append(tc.steps, s)
		}
		p.cases = append(p.cases, tc)
	}
	return p
}

// groupEvents splits an ordered sequence into test cases. Events sharing a
// correlation id form one case; uncorrelated events are grouped by
// adjacency. Cases are ordered by their first event.
func groupEvents(events []models.Event, byCorrelation bool) [][]models.Event {
	if len(events) == 0 {
		return nil
	}
	if !byCorrelation {
		return [][]models.Event{events}
	}

	var groups [][]models.Event
	index := make(map[string]int)
	run := -1
	for _, e := range events {
		id := e.Base().CorrelationID
		if id == "" {
			if run < 0 {
				run = len(groups)
				groups = append(groups, nil)
			}
			groups[run] = append(groups[run], e)
			continue
		}
		run = -1
		g, ok := index[id]
		if !ok {
			g = len(groups)
			index[id] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], e)
	}
	return groups
}

// stepFor is the dispatch table from (eventType, subtype) to a call.
func stepFor(e models.Event) step {
	switch v := e.(type) {
	case models.InputEvent:
		target := v.AutomationID
		if target == "" {
			target = v.SourceElementName
		}
		switch v.InputType {
		case models.InputTextChanged:
			return step{kind: stepEnterText, target: target, value: v.NewValue}
		case models.InputButtonClicked:
			return step{kind: stepClick, target: target}
		case models.InputSelectionChanged:
			return step{kind: stepSelectItem, target: target, value: v.NewValue}
		case models.InputCheckedChanged:
			checked, _ := strconv.ParseBool(strings.TrimSpace(v.NewValue))
			return step{kind: stepSetCheckbox, target: target, checked: checked}
		}
		return step{comment: fmt.Sprintf("%s on %s", v.InputType, target)}
	case models.CommandEvent:
		return step{kind: stepExecuteCommand, target: v.CommandName, value: v.CommandParameter}
	case models.NavigationEvent:
		if v.NavigationType == models.NavigationTabChanged {
			return step{kind: stepSelectTab, value: v.TabHeader}
		}
		return step{comment: fmt.Sprintf("Navigated from %s to %s", orNone(v.FromView), orNone(v.ToView))}
	case models.APICallEvent:
		if v.ErrorMessage != "" {
			return step{comment: fmt.Sprintf("API %s %s failed: %s", v.HTTPMethod, v.RequestURL, v.ErrorMessage)}
		}
		return step{comment: fmt.Sprintf("API %s %s -> %d (%d ms)", v.HTTPMethod, v.RequestURL, v.StatusCode, v.DurationMs)}
	case models.WindowEvent:
		return step{comment: fmt.Sprintf("Window %s: %s", v.WindowEventType, v.WindowTitle)}
	}
	return step{comment: fmt.Sprintf("Unsupported event %s", e.Type())}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// commentText makes s safe to place after a line comment marker.
func commentText(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r' || r == '\u0085' || r == '\u2028' || r == '\u2029':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
}

// identifier converts free text into a PascalCase identifier made of ASCII
// letters and digits.
func identifier(s, fallback string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if upper {
				r = unicode.ToUpper(r)
				upper = false
			}
			b.WriteRune(r)
		default:
			upper = true
		}
	}
	out := b.String()
	if out == "" {
		return fallback
	}
	if unicode.IsDigit(rune(out[0])) {
		out = "S" + out
	}
	return out
}
