package sitegen

import (
	"fmt"
	"path/filepath"
	"strings"

	"deployer-backend/pkg/api"
)

// seedPlaceholder is substituted with the round nonce in briefs and checks
// before any prompt is composed.
const seedPlaceholder = "${seed}"

const SystemPrompt = `You are a professional full-stack web developer and UI/UX designer.
Your goal is to generate a complete, working, responsive web application
manifest in strict JSON format that can be directly deployed to a static
hosting service.

The JSON schema must be:
{
  "files": [
    {"path": "index.html", "content": "<!DOCTYPE html>...</html>", "encoding": "utf-8"},
    {"path": "style.css", "content": "..."},
    {"path": "script.js", "content": "..."}
  ]
}

Design and development guidelines:
1. Design philosophy
   - Use Bootstrap 5 for all layout and styling, loaded via CDN.
   - Create visually appealing, modern, accessible design.
   - Use .container, .row, .col, .card, and the responsive grid.
   - Include spacing, headings, and proper color contrast.
   - Include a clear title, navbar (if relevant), and footer.
   - Mobile-first, responsive, and lightweight.

2. Attachment handling
   - Image (jpg/png/gif/svg): display inside a Bootstrap card or carousel.
   - CSV or Excel file: parse and render as an HTML <table>.
   - JSON file: display parsed JSON in readable format.
   - PDF: use <embed src='filename.pdf'> (no base64) and add a download link.
   - Video/Audio (mp4, webm, mp3, wav): use <video controls> or <audio controls>.
   - Always reference uploaded file names directly as src.
   - Provide download links and handle errors gracefully with Bootstrap alerts.

3. Checks handling
   - Each item in the checks list is a JavaScript test run in the browser.
   - Include all required elements and JS so checks pass.
   - Match element IDs and class names exactly (no renaming).
   - If .dark-theme or .light-theme appears in checks, include both containers
     and a #theme-toggle button. Otherwise omit theme containers.

4. Behavior and logic
   - Use vanilla JavaScript (no frameworks) for interactivity.
   - Include the JS bundle at the bottom of <body> and link style.css properly.

5. Output
   - Return valid JSON only. No markdown fences, no explanations.`

const taskPromptTemplate = `Persona:
You are a professional web developer building apps for automated evaluation.

Task:
Generate a deployable single-page web app that fulfills the brief and passes
all checks while visually presenting all attachments in a professional
Bootstrap 5 layout.

Context:
- Brief: %s
- Nonce: %s
- Round: %d
- Attachments:
%s

- Each check below is a JavaScript snippet executed in the browser.
  Ensure these elements or behaviors exist exactly as named:
%s

Format:
Return only valid JSON like:
{"files":[{"path":"index.html","content":"<html>...</html>"}]}

Output Requirements:
- No markdown formatting or explanations.
- Must be a single valid JSON object.`

// ApplySeed substitutes the round nonce for the ${seed} placeholder.
func ApplySeed(s, nonce string) string {
	return strings.ReplaceAll(s, seedPlaceholder, nonce)
}

// ThemeRequired reports whether the checks demand light/dark theme containers
// and a toggle control.
func ThemeRequired(checks []string) bool {
	for _, check := range checks {
		if strings.Contains(check, ".dark-theme") || strings.Contains(check, ".light-theme") || strings.Contains(check, "#theme-toggle") {
			return true
		}
	}
	return false
}

func summarizeAttachments(attachments []api.Attachment) string {
	if len(attachments) == 0 {
		return "No attachments."
	}
	var lines []string
	for _, a := range attachments {
		name := a.Name
		if name == "" {
			name = "unnamed"
		}
		var kind string
		switch strings.ToLower(filepath.Ext(name)) {
		case ".png", ".jpg", ".jpeg", ".gif", ".svg":
			kind = "image file (display in <img>)"
		case ".csv", ".tsv", ".xlsx":
			kind = "CSV/Excel data table (render in <table>)"
		case ".json":
			kind = "JSON data (visualize)"
		case ".pdf":
			kind = "PDF document (embed viewer, link download)"
		case ".mp4", ".webm", ".mp3", ".wav":
			kind = "media file (add player)"
		default:
			kind = "generic file"
		}
		lines = append(lines, fmt.Sprintf(" - %s: %s", name, kind))
	}
	return strings.Join(lines, "\n")
}

// ComposeTaskPrompt builds the per-task user prompt. The brief and checks must
// already be seed-substituted; selector guidance and the theme requirement are
// appended to the brief before templating.
func ComposeTaskPrompt(brief string, checks []string, nonce string, round int, attachments []api.Attachment) string {
	hints := ExtractSelectors(checks)

	var guidance strings.Builder
	if len(hints.Ids) > 0 {
		fmt.Fprintf(&guidance, "\nYou must include elements with these IDs: #%s.", strings.Join(hints.Ids, ", #"))
	}
	if len(hints.Classes) > 0 {
		fmt.Fprintf(&guidance, "\nInclude containers with these CSS classes: .%s.", strings.Join(hints.Classes, ", ."))
	}
	if len(hints.Tags) > 0 {
		fmt.Fprintf(&guidance, "\nEnsure proper HTML tags exist: <%s>.", strings.Join(hints.Tags, ">, <"))
	}
	if len(hints.DataAttrs) > 0 {
		fmt.Fprintf(&guidance, "\nAdd data attributes where applicable: data-%s.", strings.Join(hints.DataAttrs, ", data-"))
	}

	if guidance.Len() > 0 {
		brief += "\n\nSelector Awareness Guidance:" + guidance.String()
	}
	if len(hints.Compound) > 0 {
		brief += "\n\nComplex Selector Hints:\n- " + strings.Join(hints.Compound, "\n- ")
	}
	if ThemeRequired(checks) {
		brief += "\n\nIMPORTANT: This task REQUIRES both a `.dark-theme` and `.light-theme` section " +
			"and a visible `#theme-toggle` button. Include JS logic to switch themes. " +
			"Default view should be the light theme."
	}

	var checksText strings.Builder
	for _, check := range checks {
		fmt.Fprintf(&checksText, " - %s\n", check)
	}

	return fmt.Sprintf(taskPromptTemplate, brief, nonce, round, summarizeAttachments(attachments), strings.TrimRight(checksText.String(), "\n"))
}
