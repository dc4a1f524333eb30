// Package vision drafts area descriptions from photos with a vision model.
package vision

import (
	"context"
	"io"
	"strings"
)

// DescriptionPrompt is the shared prompt used by all vision adapters.
const DescriptionPrompt = `This photo was taken inside or outside an electrical switchroom.
Describe what is visible that would help a technician find and identify it:
equipment (switchboards, cabinets, meters, panels), labels or signage you can
read, access notes (doors, ladders, locks). Respond with one or two short
plain-text sentences, no lists, no preamble.`

// Describer produces a short description for an image.
type Describer interface {
	Describe(ctx context.Context, r io.Reader, mimeType string) (string, error)
}

var preambles = []string{"Description:", "Here is a description:", "Sure!", "Sure,"}

// CleanDescription trims model chatter from a raw response and collapses it
// onto a single line.
func CleanDescription(raw string) string {
	s := strings.TrimSpace(raw)
	for _, p := range preambles {
		if len(s) >= len(p) && strings.EqualFold(s[:len(p)], p) {
			s = strings.TrimSpace(s[len(p):])
		}
	}
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, `"`)
}
