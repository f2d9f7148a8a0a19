// Package prompts builds the prompts for each generation stage.
package prompts

import (
	"fmt"
	"strings"
)

// EpicContext carries the unit metadata every stage prompt opens with.
type EpicContext struct {
	Name        string
	Description string
	Speciality  string
}

// ScreenContext is one uploaded screen as the prompts reference it.
type ScreenContext struct {
	Position    int // 1-based upload position
	Filename    string
	Description string
	URL         string
	IsSub       bool
}

func writeEpicHeader(b *strings.Builder, epic EpicContext) {
	fmt.Fprintf(b, "Feature name: %s\n", epic.Name)
	if epic.Description != "" {
		fmt.Fprintf(b, "Feature description: %s\n", epic.Description)
	}
	if epic.Speciality != "" {
		fmt.Fprintf(b, "Domain notes: %s\n", epic.Speciality)
	}
	b.WriteString("\n")
}

// BuildDescribePrompt creates the first analysis pass: a free-text
// reference flow describing what the attached screenshots show and how
// a user moves between them. Images are attached to the request in
// upload order.
func BuildDescribePrompt(epic EpicContext, screenCount int) string {
	var b strings.Builder
	b.WriteString("You are a senior product analyst reviewing UI screenshots of a feature under development.\n\n")
	writeEpicHeader(&b, epic)
	fmt.Fprintf(&b, "Attached are %d screenshots in their upload order.\n", screenCount)
	b.WriteString(`Describe the reference flow of this feature: what each screen shows, what the user does on it, and in what order the screens are visited. Identify which screens are primary steps of the flow and which are secondary views (dialogs, detail panels, variants) of a primary screen.

Write plain prose. Do not return JSON.`)
	return b.String()
}

// BuildArrangePrompt creates the second analysis pass: convert the
// reference flow into a strict ordered screen list. Each entry refers
// to an original screenshot by its 1-based upload position.
func BuildArrangePrompt(epic EpicContext, referenceFlow string, screenCount int) string {
	var b strings.Builder
	b.WriteString("You previously described the reference flow of a feature from its UI screenshots.\n\n")
	writeEpicHeader(&b, epic)
	fmt.Fprintf(&b, "Reference flow:\n%s\n\n", referenceFlow)
	fmt.Fprintf(&b, `There were %d screenshots, numbered 1 to %d in upload order. Convert the reference flow into an ordered screen list.

Return ONLY a JSON array. Each entry is a main screen in flow order:
{
  "original_position": <1-based upload position of the screenshot>,
  "title": "<short screen name>",
  "description": "<one-paragraph description of the screen>",
  "sub_screens": [
    {"original_position": <int>, "title": "...", "description": "..."}
  ]
}

Every screenshot must appear exactly once, either as a main screen or as a sub-screen. sub_screens may be empty or omitted.`, screenCount, screenCount)
	return b.String()
}

// BuildRedistributePrompt asks the backend to partition free-text
// narration across the screens it refers to. Images are attached in the
// listed order; the response references screens by their image URL.
func BuildRedistributePrompt(epic EpicContext, narration string, screens []ScreenContext) string {
	var b strings.Builder
	b.WriteString("You are annotating UI screens with the backend logic that powers them.\n\n")
	writeEpicHeader(&b, epic)
	b.WriteString("Screens:\n")
	for _, s := range screens {
		fmt.Fprintf(&b, "- %s (%s)\n", s.Filename, s.URL)
	}
	fmt.Fprintf(&b, "\nBackend-logic narration provided by the developer:\n%s\n\n", narration)
	b.WriteString(`Split the narration into per-screen fragments. Return ONLY a JSON object:
{
  "screens": [{"url": "<screen url>", "fragment": "<narration relevant to this screen>"}],
  "general": "<narration that applies to no single screen, or empty string>"
}

Use each screen's URL exactly as listed. Leave out screens the narration never touches.`)
	return b.String()
}

// BuildAppFlowPrompt assembles the app-flow generation prompt from the
// ordered screen descriptions and the accumulated narration fragments.
func BuildAppFlowPrompt(epic EpicContext, screens []ScreenContext, fragments []string) string {
	var b strings.Builder
	b.WriteString("Write the application-flow document for the following feature.\n\n")
	writeEpicHeader(&b, epic)

	b.WriteString("Screens in flow order:\n")
	for i, s := range screens {
		indent := ""
		if s.IsSub {
			indent = "  "
		}
		fmt.Fprintf(&b, "%s%d. %s: %s\n", indent, i+1, s.Filename, s.Description)
	}

	if len(fragments) > 0 {
		b.WriteString("\nBackend logic notes:\n")
		for _, f := range fragments {
			fmt.Fprintf(&b, "%s\n", f)
		}
	}

	b.WriteString(`
Produce a markdown document describing the complete user journey through these screens: entry points, the action and system response on each screen, navigation between screens, and how the backend logic notes map onto the flow. Use headings and numbered steps.`)
	return b.String()
}

// BuildScreenDocPrompt creates the per-screen documentation prompt.
func BuildScreenDocPrompt(epic EpicContext, appFlow string, screen ScreenContext) string {
	var b strings.Builder
	b.WriteString("Write the detailed specification for one screen of a feature.\n\n")
	writeEpicHeader(&b, epic)
	if appFlow != "" {
		fmt.Fprintf(&b, "Application flow for context:\n%s\n\n", appFlow)
	}
	fmt.Fprintf(&b, "Screen: %s\n", screen.Filename)
	if screen.Description != "" {
		fmt.Fprintf(&b, "Screen description: %s\n", screen.Description)
	}
	b.WriteString(`
Produce a markdown document covering: purpose of the screen, every visible element and its behavior, validation rules, states (loading, empty, error), and backend interactions. Be specific to this screen; do not restate the whole flow.`)
	return b.String()
}
