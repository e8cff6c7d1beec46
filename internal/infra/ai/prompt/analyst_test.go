package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bryanwahyu/automaton-intel/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-intel/internal/domain/modules"
)

func TestGetModulePrompt(t *testing.T) {
	m := modules.Module{Name: "foo.rb", Category: "exploits", Path: "modules/exploits/foo.rb"}
	p := GetModulePrompt(m, "def exploit; end")

	assert.Contains(t, p, "- Name: foo.rb")
	assert.Contains(t, p, "- Type: exploits")
	assert.Contains(t, p, "```ruby\ndef exploit; end\n```")
	assert.Contains(t, p, "7. A draft Snort rule")
}

func TestGetTicketPromptHeadings(t *testing.T) {
	a := &analysis.Analysis{Summary: "s", Recommendations: []string{"patch"}}
	p := GetTicketPrompt(modules.Module{Name: "foo.rb", URL: "https://x"}, a)

	for _, h := range []string{"Overview", "Impact assessment", "Detection capabilities", "Recommended actions", "References"} {
		assert.Contains(t, p, h)
	}
	assert.Contains(t, p, "Snort Rule:\nNone")
	assert.Contains(t, p, "Module URL: https://x")
}
