package confluence

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/bryanwahyu/automaton-intel/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-intel/internal/domain/modules"
)

// RenderAnalysis builds the storage-format body of a module page. Every
// interpolated value is HTML-escaped; the Snort rule goes into a code macro.
func RenderAnalysis(m modules.Module, a *analysis.Analysis) string {
	e := html.EscapeString
	var b strings.Builder

	b.WriteString("<h1>Module Information</h1>\n<table>\n")
	row := func(k, v string) { fmt.Fprintf(&b, "<tr><th>%s</th><td>%s</td></tr>\n", k, e(v)) }
	row("Name", m.Name)
	row("Path", m.Path)
	row("Type", m.Category)
	row("Last Modified", m.LastCommit.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "<tr><th>GitHub URL</th><td><a href=\"%s\">%s</a></td></tr>\n", e(m.URL), e(m.URL))
	b.WriteString("</table>\n\n<h1>Analysis</h1>\n")

	section := func(h, v string) { fmt.Fprintf(&b, "<h2>%s</h2>\n<p>%s</p>\n\n", h, e(v)) }
	section("Summary", a.Summary)
	section("Impact", a.Impact)
	section("Attack Type", a.AttackType)
	section("Affected Systems", a.AffectedSystems)

	list := func(h string, items []string) {
		fmt.Fprintf(&b, "<h2>%s</h2>\n<ul>\n", h)
		for _, it := range items {
			fmt.Fprintf(&b, "<li>%s</li>\n", e(it))
		}
		b.WriteString("</ul>\n\n")
	}
	list("Security Recommendations", a.Recommendations)
	list("Potential Indicators", a.PotentialIndicators)

	if a.HasSnortRule() {
		b.WriteString("<h2>Draft Snort Rule</h2>\n")
		b.WriteString("<ac:structured-macro ac:name=\"code\">\n")
		b.WriteString("<ac:parameter ac:name=\"language\">text</ac:parameter>\n")
		fmt.Fprintf(&b, "<ac:plain-text-body>%s</ac:plain-text-body>\n", cdata(a.DraftSnortRule))
		b.WriteString("</ac:structured-macro>\n")
	}
	return b.String()
}

// cdata wraps s in a CDATA section, splitting any "]]>" so it cannot end
// the section early.
func cdata(s string) string {
	return "<![CDATA[" + strings.ReplaceAll(s, "]]>", "]]]]><![CDATA[>") + "]]>"
}

func containerBody(title string) string {
	return fmt.Sprintf(`<h1>%s</h1>
<p>This folder contains analysis of recent Metasploit modules. Each page in this folder represents an analysis of a module that has been recently added or modified in the Metasploit Framework.</p>

<h2>Contents</h2>
<p>Each analysis page includes:</p>
<ul>
    <li>Basic module information (name, path, type)</li>
    <li>Last modification date</li>
    <li>GitHub URL for the module</li>
    <li>AI-generated analysis summary</li>
    <li>Potential impact assessment</li>
    <li>Attack type classification</li>
    <li>Affected systems/software</li>
    <li>Security recommendations</li>
    <li>Potential indicators (IPs, ports, protocols, paths)</li>
    <li>Draft Snort rules (where applicable)</li>
</ul>

<p>This folder is automatically updated by the SOC automation system.</p>`, html.EscapeString(title))
}
