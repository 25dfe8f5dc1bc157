// Package selector builds CSS locators for elements captured on a page.
package selector

import (
	"strconv"
	"strings"
)

// Element is the minimal view of a DOM element the synthesizer needs.
type Element interface {
	Tag() string
	ID() string
	// SameTagIndex is the 1-based position among siblings sharing the tag.
	SameTagIndex() int
	// Parent returns nil at the document root.
	Parent() Element
}

// Synthesize walks from el up to the root and returns a " > " joined locator.
// An element with an id ends the walk since ids are taken as page-unique.
func Synthesize(el Element) string {
	var path []string
	for el != nil {
		tag := strings.ToLower(el.Tag())
		if tag == "" {
			break
		}
		if id := el.ID(); id != "" {
			path = append(path, tag+"#"+escapeIdent(id))
			break
		}
		part := tag
		if k := el.SameTagIndex(); k > 1 {
			part += ":nth-of-type(" + strconv.Itoa(k) + ")"
		}
		path = append(path, part)
		el = el.Parent()
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return strings.Join(path, " > ")
}

// escapeIdent escapes an identifier following CSS.escape so ids such as
// "a.b" or "1st" still parse as a single id selector.
func escapeIdent(id string) string {
	var b strings.Builder
	for i, r := range id {
		switch {
		case r == 0:
			b.WriteRune('\uFFFD')
		case r >= 0x1 && r <= 0x1f, r == 0x7f:
			b.WriteString(`\` + strconv.FormatInt(int64(r), 16) + " ")
		case i == 0 && r >= '0' && r <= '9':
			b.WriteString(`\` + strconv.FormatInt(int64(r), 16) + " ")
		case i == 1 && r >= '0' && r <= '9' && id[0] == '-':
			b.WriteString(`\` + strconv.FormatInt(int64(r), 16) + " ")
		case i == 0 && r == '-' && len(id) == 1:
			b.WriteString(`\-`)
		case r >= 0x80, r == '-', r == '_',
			r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		default:
			b.WriteString(`\` + string(r))
		}
	}
	return b.String()
}
