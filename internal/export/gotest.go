package export

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/session"
)

// GoTestExporter generates a Go test file that replays the recorded
// interactions through a small appDriver helper.
type GoTestExporter struct {
	Package string
}

func NewGoTestExporter() *GoTestExporter {
	return &GoTestExporter{Package: "recorded"}
}

func (e *GoTestExporter) FormatName() string    { return "gotest" }
func (e *GoTestExporter) FileExtension() string { return "_test.go" }

var goHelpers = map[stepKind]string{
	stepEnterText: `func (a *appDriver) EnterText(target, value string) {
	a.t.Helper()
	a.t.Logf("enter text %q into %s", value, target)
}`,
	stepClick: `func (a *appDriver) Click(target string) {
	a.t.Helper()
	a.t.Logf("click %s", target)
}`,
	stepSelectItem: `func (a *appDriver) SelectItem(target, value string) {
	a.t.Helper()
	a.t.Logf("select %q in %s", value, target)
}`,
	stepSetCheckbox: `func (a *appDriver) SetCheckbox(target string, checked bool) {
	a.t.Helper()
	a.t.Logf("set %s checked=%t", target, checked)
}`,
	stepExecuteCommand: `func (a *appDriver) ExecuteCommand(name, parameter string) {
	a.t.Helper()
	a.t.Logf("execute command %s(%q)", name, parameter)
}`,
	stepSelectTab: `func (a *appDriver) SelectTab(header string) {
	a.t.Helper()
	a.t.Logf("select tab %q", header)
}`,
}

func (e *GoTestExporter) Export(events []models.Event, info *session.Info) ([]byte, error) {
	p := newCodePlan(events, info)
	pkg := e.Package
	if pkg == "" {
		pkg = "recorded"
	}

	var b bytes.Buffer
	b.WriteString("// Code generated by synheart-recorder. DO NOT EDIT.\n")
	if p.session != "" {
		fmt.Fprintf(&b, "// Session: %s\n", commentText(p.session))
	}
	fmt.Fprintf(&b, "\npackage %s\n", pkg)

	if len(p.cases) == 0 {
		b.WriteString("\n// No interactions were recorded.\n")
		return b.Bytes(), nil
	}

	b.WriteString("\nimport \"testing\"\n")

	for _, tc := range p.cases {
		fmt.Fprintf(&b, "\nfunc Test%s_Interaction%02d(t *testing.T) {\n", p.suite, tc.number)
		if tc.hasCalls() {
			b.WriteString("\tapp := newAppDriver(t)\n")
		} else {
			b.WriteString("\t_ = t\n")
		}
		for _, s := range tc.steps {
			b.WriteString("\t" + goStep(s) + "\n")
		}
		b.WriteString("}\n")
	}

	if len(p.used) > 0 {
		b.WriteString(`
type appDriver struct {
	t *testing.T
}

func newAppDriver(t *testing.T) *appDriver {
	t.Helper()
	return &appDriver{t: t}
}
`)
		for _, k := range stepKinds {
			if p.used[k] {
				b.WriteString("\n" + goHelpers[k] + "\n")
			}
		}
	}
	return b.Bytes(), nil
}

func goStep(s step) string {
	q := strconv.Quote
	switch s.kind {
	case stepEnterText:
		return fmt.Sprintf("app.EnterText(%s, %s)", q(s.target), q(s.value))
	case stepClick:
		return fmt.Sprintf("app.Click(%s)", q(s.target))
	case stepSelectItem:
		return fmt.Sprintf("app.SelectItem(%s, %s)", q(s.target), q(s.value))
	case stepSetCheckbox:
		return fmt.Sprintf("app.SetCheckbox(%s, %t)", q(s.target), s.checked)
	case stepExecuteCommand:
		return fmt.Sprintf("app.ExecuteCommand(%s, %s)", q(s.target), q(s.value))
	case stepSelectTab:
		return fmt.Sprintf("app.SelectTab(%s)", q(s.value))
	}
	return "// " + commentText(s.comment)
}
