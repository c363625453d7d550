package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/synheart/synheart-recorder/internal/models"
	"github.com/synheart/synheart-recorder/internal/session"
)

// XUnitExporter generates a C# xUnit test class.
type XUnitExporter struct {
	Namespace string
}

func NewXUnitExporter() *XUnitExporter {
	return &XUnitExporter{Namespace: "Synheart.Recorded"}
}

func (e *XUnitExporter) FormatName() string    { return "xunit" }
func (e *XUnitExporter) FileExtension() string { return ".cs" }

var csHelpers = map[stepKind]string{
	stepEnterText: `        private static void EnterText(string target, string value)
        {
            Console.WriteLine($"enter text '{value}' into {target}");
        }`,
	stepClick: `        private static void Click(string target)
        {
            Console.WriteLine($"click {target}");
        }`,
	stepSelectItem: `        private static void SelectItem(string target, string value)
        {
            Console.WriteLine($"select '{value}' in {target}");
        }`,
	stepSetCheckbox: `        private static void SetCheckbox(string target, bool isChecked)
        {
            Console.WriteLine($"set {target} checked={isChecked}");
        }`,
	stepExecuteCommand: `        private static void ExecuteCommand(string name, string parameter)
        {
            Console.WriteLine($"execute command {name}('{parameter}')");
        }`,
	stepSelectTab: `        private static void SelectTab(string header)
        {
            Console.WriteLine($"select tab '{header}'");
        }`,
}

func (e *XUnitExporter) Export(events []models.Event, info *session.Info) ([]byte, error) {
	p := newCodePlan(events, info)
	ns := e.Namespace
	if ns == "" {
		ns = "Synheart.Recorded"
	}

	var b bytes.Buffer
	b.WriteString("// <auto-generated>\n//     Generated by synheart-recorder.\n")
	if p.session != "" {
		fmt.Fprintf(&b, "//     Session: %s\n", commentText(p.session))
	}
	b.WriteString("// </auto-generated>\n")
	b.WriteString("using System;\nusing Xunit;\n\n")
	fmt.Fprintf(&b, "namespace %s\n{\n", ns)
	fmt.Fprintf(&b, "    public class %sTests\n    {\n", p.suite)

	for i, tc := range p.cases {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "        [Fact]\n        public void Interaction%02d()\n        {\n", tc.number)
		for _, s := range tc.steps {
			b.WriteString("            " + csStep(s) + "\n")
		}
		b.WriteString("        }\n")
	}

	for _, k := range stepKinds {
		if p.used[k] {
			b.WriteString("\n" + csHelpers[k] + "\n")
		}
	}

	b.WriteString("    }\n}\n")
	return b.Bytes(), nil
}

func csStep(s step) string {
	q := func(v string) string { return `"` + EscapeCSharp(v) + `"` }
	switch s.kind {
	case stepEnterText:
		return fmt.Sprintf("EnterText(%s, %s);", q(s.target), q(s.value))
	case stepClick:
		return fmt.Sprintf("Click(%s);", q(s.target))
	case stepSelectItem:
		return fmt.Sprintf("SelectItem(%s, %s);", q(s.target), q(s.value))
	case stepSetCheckbox:
		return fmt.Sprintf("SetCheckbox(%s, %t);", q(s.target), s.checked)
	case stepExecuteCommand:
		return fmt.Sprintf("ExecuteCommand(%s, %s);", q(s.target), q(s.value))
	case stepSelectTab:
		return fmt.Sprintf("SelectTab(%s);", q(s.value))
	}
	return "// " + commentText(s.comment)
}

// EscapeCSharp escapes s for use inside a regular C# string literal.
func EscapeCSharp(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case 0:
			b.WriteString(`\0`)
		case '\u0085', '\u2028', '\u2029':
			fmt.Fprintf(&b, `\u%04X`, r)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04X`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}
