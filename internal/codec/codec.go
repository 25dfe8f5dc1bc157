// Package codec converts action sequences to and from the line-oriented script
// text shown in the editor:
//
//	click("#login");
//	type("#user", "alice");
//	wait(250);
package codec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"echoclicker/internal/models"
)

var commandRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*\((.*)\)\s*;$`)

// Format renders one line per action. The output always parses back to the
// same sequence.
func Format(actions []models.Action) string {
	lines := make([]string, 0, len(actions))
	for _, a := range actions {
		lines = append(lines, FormatAction(a))
	}
	return strings.Join(lines, "\n")
}

// FormatAction renders a single action as a script line.
func FormatAction(a models.Action) string {
	switch a.Type {
	case models.ActionClick:
		return fmt.Sprintf("click(%s);", quote(a.Selector))
	case models.ActionInput:
		return fmt.Sprintf("type(%s, %s);", quote(a.Selector), quote(a.Value))
	case models.ActionWait:
		return fmt.Sprintf("wait(%d);", a.Ms)
	default:
		return fmt.Sprintf("// unknown action: %s", a.Type)
	}
}

// Parse reads script text back into actions. Lines that cannot be read are
// skipped and reported as diagnostics.
func Parse(text string) ([]models.Action, Diagnostics) {
	var (
		actions []models.Action
		diags   Diagnostics
	)
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
			continue
		}
		a, err := parseLine(line)
		if err != nil {
			diags = append(diags, Diagnostic{Line: i + 1, Text: line, Reason: err.Error()})
			continue
		}
		actions = append(actions, a)
	}
	return actions, diags
}

func parseLine(line string) (models.Action, error) {
	m := commandRe.FindStringSubmatch(line)
	if m == nil {
		return models.Action{}, fmt.Errorf(`expected name(args);`)
	}
	name := m[1]
	args, err := splitArgs(m[2])
	if err != nil {
		return models.Action{}, err
	}

	switch name {
	case "click":
		if len(args) != 1 {
			return models.Action{}, fmt.Errorf("click takes 1 argument, got %d", len(args))
		}
		sel, err := args[0].str()
		if err != nil {
			return models.Action{}, err
		}
		a := models.Click(sel)
		return a, a.Validate()
	case "type":
		if len(args) != 2 {
			return models.Action{}, fmt.Errorf("type takes 2 arguments, got %d", len(args))
		}
		sel, err := args[0].str()
		if err != nil {
			return models.Action{}, err
		}
		val, err := args[1].str()
		if err != nil {
			return models.Action{}, err
		}
		a := models.Type(sel, val)
		return a, a.Validate()
	case "wait":
		if len(args) != 1 {
			return models.Action{}, fmt.Errorf("wait takes 1 argument, got %d", len(args))
		}
		if args[0].quoted {
			return models.Action{}, fmt.Errorf("wait takes a number of milliseconds")
		}
		ms, err := strconv.ParseInt(args[0].text, 10, 64)
		if err != nil || ms < 0 {
			return models.Action{}, fmt.Errorf("invalid wait duration %q", args[0].text)
		}
		return models.Wait(ms), nil
	default:
		return models.Action{}, fmt.Errorf("unknown command %q", name)
	}
}

type arg struct {
	text   string
	quoted bool
}

func (a arg) str() (string, error) {
	if !a.quoted {
		return "", fmt.Errorf("expected a quoted string, got %q", a.text)
	}
	return a.text, nil
}

// splitArgs splits on commas outside double quotes and decodes quoted strings.
func splitArgs(s string) ([]arg, error) {
	var args []arg
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for {
		s = strings.TrimLeft(s, " \t")
		var a arg
		if strings.HasPrefix(s, `"`) {
			text, rest, err := unquote(s)
			if err != nil {
				return nil, err
			}
			a, s = arg{text: text, quoted: true}, strings.TrimLeft(rest, " \t")
		} else {
			end := strings.IndexByte(s, ',')
			if end < 0 {
				end = len(s)
			}
			a, s = arg{text: strings.TrimSpace(s[:end])}, s[end:]
			if a.text == "" {
				return nil, fmt.Errorf("empty argument")
			}
		}
		args = append(args, a)
		if s == "" {
			return args, nil
		}
		if s[0] != ',' {
			return nil, fmt.Errorf("unexpected %q after argument", s)
		}
		s = s[1:]
	}
}

// unquote reads a double-quoted string at the start of s and returns its
// decoded value and the remaining input.
func unquote(s string) (string, string, error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			return b.String(), s[i+1:], nil
		case '\\':
			i++
			if i >= len(s) {
				return "", "", fmt.Errorf("unterminated string")
			}
			switch s[i] {
			case '\\', '"':
				b.WriteByte(s[i])
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			default:
				return "", "", fmt.Errorf(`unknown escape \%c`, s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", "", fmt.Errorf("unterminated string")
}

func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '"':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
