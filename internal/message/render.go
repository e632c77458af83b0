// Package message renders campaign templates. Rendering is pure string
// substitution of the two recognized placeholders; anything else between
// braces is a template error caught at validation time, not at send time.
package message

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	PlaceholderName    = "{name}"
	PlaceholderCompany = "{company}"
)

// DefaultTemplate is the campaign message used until the operator sets one.
const DefaultTemplate = "Hi {name}, I've been following {company} and wanted to share something with you!"

var ErrInvalidTemplate = errors.New("invalid template")

var placeholderRe = regexp.MustCompile(`\{[^{}]*\}`)

// Validate rejects empty/whitespace templates and templates containing
// placeholders other than {name} and {company}.
func Validate(tmpl string) error {
	if strings.TrimSpace(tmpl) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTemplate)
	}
	for _, ph := range placeholderRe.FindAllString(tmpl, -1) {
		if ph != PlaceholderName && ph != PlaceholderCompany {
			return fmt.Errorf("%w: unknown placeholder %s", ErrInvalidTemplate, ph)
		}
	}
	return nil
}

// Render substitutes the recipient's display name and group name into tmpl.
func Render(tmpl, name, company string) string {
	return strings.NewReplacer(
		PlaceholderName, name,
		PlaceholderCompany, company,
	).Replace(tmpl)
}
