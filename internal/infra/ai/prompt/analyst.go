package prompt

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/automaton-intel/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-intel/internal/domain/modules"
)

// GetSystemPrompt sets the analyst persona for every request.
func GetSystemPrompt() string {
	return `You are a senior threat intelligence analyst working in a security operations center. Answer in plain text, concise and factual.`
}

// GetModulePrompt asks for the seven sections the section parser expects, in
// order. content must already be truncated by the caller.
func GetModulePrompt(m modules.Module, content string) string {
	return fmt.Sprintf(`Analyze this Metasploit module and provide a structured analysis with the following information:

Module Information:
- Name: %s
- Type: %s
- Path: %s

Module Content:
`+"```ruby\n%s\n```"+`

Please provide:
1. A brief summary of the module's functionality
2. The potential impact if exploited
3. The type of attack (e.g., RCE, privilege escalation)
4. Affected systems or software
5. Security recommendations
6. Key indicators (IPs, ports, protocols, file paths)
7. A draft Snort rule (if applicable)

Format your response in a structured way that can be parsed into these sections.
Separate each section with exactly one blank line and do not add headings or any other text.`, m.Name, m.Category, m.Path, content)
}

// GetTicketPrompt asks the model to rewrite an analysis into a ticket body
// with five fixed headings.
func GetTicketPrompt(m modules.Module, a *analysis.Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a detailed Jira ticket description for a new Metasploit module with the following information:\n\n")
	fmt.Fprintf(&b, "Module Name: %s\nModule Type: %s\nModule URL: %s\n\n", m.Name, m.Category, m.URL)
	fmt.Fprintf(&b, "Analysis:\nSummary: %s\nImpact: %s\nAttack Type: %s\nAffected Systems: %s\n", a.Summary, a.Impact, a.AttackType, a.AffectedSystems)
	fmt.Fprintf(&b, "Recommendations:\n%s\nIndicators:\n%s\n\n", strings.Join(a.Recommendations, "\n"), strings.Join(a.PotentialIndicators, "\n"))
	snort := a.DraftSnortRule
	if snort == "" {
		snort = "None"
	}
	fmt.Fprintf(&b, "Snort Rule:\n%s\n\n", snort)
	b.WriteString(`Please format the description with appropriate sections and markdown formatting.
Include:
1. Overview of the module
2. Impact assessment
3. Detection capabilities (Snort rule)
4. Recommended actions
5. References`)
	return b.String()
}
