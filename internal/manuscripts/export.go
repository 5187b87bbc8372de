package manuscripts

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/templates"
)

// titleCase uppercases the first rune of each hyphen/underscore-separated
// word for section headings ("related-work" -> "Related Work").
func titleCase(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_' || r == ' '
	})
	for i, word := range words {
		first, size := utf8.DecodeRuneInString(word)
		words[i] = string(unicode.ToUpper(first)) + word[size:]
	}
	return strings.Join(words, " ")
}

// RenderMarkdown renders a manuscript as a markdown document. Sections with
// a registered template come first in template position order; any others
// follow alphabetically. Sections with empty text are skipped.
func RenderMarkdown(title string, sections map[string]string, registry *templates.Registry) string {
	var order []string
	seen := make(map[string]bool)

	if registry != nil {
		for _, meta := range registry.List() {
			if _, ok := sections[meta.Name]; ok {
				order = append(order, meta.Name)
				seen[meta.Name] = true
			}
		}
	}

	var rest []string
	for name := range sections {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)

	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(title)
	b.WriteString("\n")

	for _, name := range order {
		text := strings.TrimSpace(sections[name])
		if text == "" {
			continue
		}
		b.WriteString("\n## ")
		b.WriteString(titleCase(name))
		b.WriteString("\n\n")
		b.WriteString(text)
		b.WriteString("\n")
	}

	return b.String()
}
