package sitegen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"deployer-backend/internal/sitegen"
)

func TestExtractSelectors(t *testing.T) {
	checks := []string{
		"document.querySelector('#summary') !== null",
		"document.querySelector('.result-card') !== null",
		"document.querySelector('nav') !== null",
		"document.getElementById('chart').dataset.loaded === 'true'",
	}

	hints := sitegen.ExtractSelectors(checks)

	assert.Contains(t, hints.Ids, "summary")
	assert.Contains(t, hints.Ids, "chart")
	assert.Contains(t, hints.Classes, "result-card")
	assert.Contains(t, hints.Tags, "nav")
	assert.Contains(t, hints.DataAttrs, "loaded")
	assert.False(t, hints.Empty())
}

func TestExtractSelectorsCompound(t *testing.T) {
	checks := []string{"document.querySelectorAll('#sales tbody tr').length >= 3"}

	hints := sitegen.ExtractSelectors(checks)
	assert.Len(t, hints.Compound, 1)
	assert.Contains(t, hints.Compound[0], "#sales")
	assert.Contains(t, hints.Compound[0], "<tbody>")
	assert.Contains(t, hints.Compound[0], "<tr>")
}

func TestExtractSelectorsEmpty(t *testing.T) {
	hints := sitegen.ExtractSelectors([]string{"1 + 1 === 2"})
	assert.True(t, hints.Empty())
}

func TestTableIdsFromChecks(t *testing.T) {
	checks := []string{
		"document.querySelectorAll('#sales tbody tr').length > 0",
		"document.querySelector('#title') !== null",
	}

	ids := sitegen.TableIdsFromChecks(checks)
	// Ids adjacent to a tbody reference come first.
	assert.Equal(t, "sales", ids[0])
	assert.Contains(t, ids, "title")
}

func TestTableRowsRequired(t *testing.T) {
	assert.True(t, sitegen.TableRowsRequired([]string{"document.querySelectorAll('#t tbody tr').length > 0"}))
	assert.False(t, sitegen.TableRowsRequired([]string{"document.querySelector('#t') !== null"}))
}

func TestThemeRequired(t *testing.T) {
	assert.True(t, sitegen.ThemeRequired([]string{"document.querySelector('.dark-theme') !== null"}))
	assert.True(t, sitegen.ThemeRequired([]string{"document.querySelector('#theme-toggle') !== null"}))
	assert.False(t, sitegen.ThemeRequired([]string{"document.querySelector('#title') !== null"}))
}

func TestApplySeed(t *testing.T) {
	assert.Equal(t, "Build abc123 site", sitegen.ApplySeed("Build ${seed} site", "abc123"))
	assert.Equal(t, "no placeholder", sitegen.ApplySeed("no placeholder", "abc123"))
}

func TestComposeTaskPromptIncludesGuidance(t *testing.T) {
	prompt := sitegen.ComposeTaskPrompt(
		"Build a dashboard",
		[]string{"document.querySelector('#theme-toggle') !== null"},
		"nonce1", 2, nil,
	)

	assert.Contains(t, prompt, "Build a dashboard")
	assert.Contains(t, prompt, "#theme-toggle")
	assert.Contains(t, prompt, "nonce1")
	assert.Contains(t, prompt, "REQUIRES both a `.dark-theme` and `.light-theme`")
	assert.Contains(t, prompt, "No attachments.")
}
