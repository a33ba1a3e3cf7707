package ui

import (
	"errors"
	"fmt"
	"strings"
)

// Verb names a command typed at the prompt
type Verb string

const (
	VerbClick     Verb = "click"
	VerbInput     Verb = "input"
	VerbSubmit    Verb = "submit"
	VerbFocus     Verb = "focus"
	VerbReconnect Verb = "reconnect"
	VerbQuit      Verb = "quit"
)

// ErrEmptyCommand is returned for a blank prompt line
var ErrEmptyCommand = errors.New("empty command")

// Command is a parsed prompt line
type Command struct {
	Verb     Verb
	Selector string
	Text     string
}

// Usage lists the accepted commands
const Usage = "click <sel> | input <sel> <text> | submit <sel> | focus <sel> | reconnect | quit"

// ParseCommand parses one prompt line. Selectors are a single word unless
// quoted; input text is the rest of the line.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, ErrEmptyCommand
	}

	word, rest := cut(line)
	verb := Verb(strings.ToLower(word))
	switch verb {
	case VerbReconnect, VerbQuit:
		if rest != "" {
			return Command{}, fmt.Errorf("%s takes no arguments", verb)
		}
		return Command{Verb: verb}, nil
	case VerbClick, VerbSubmit, VerbFocus, VerbInput:
	case "q", "exit":
		return Command{Verb: VerbQuit}, nil
	default:
		return Command{}, fmt.Errorf("unknown command %q (%s)", word, Usage)
	}

	selector, rest, err := selectorArg(rest)
	if err != nil {
		return Command{}, err
	}
	if selector == "" {
		return Command{}, fmt.Errorf("%s needs a selector", verb)
	}
	cmd := Command{Verb: verb, Selector: selector}

	if verb == VerbInput {
		cmd.Text = rest
		return cmd, nil
	}
	if rest != "" {
		return Command{}, fmt.Errorf("%s takes one selector", verb)
	}
	return cmd, nil
}

func cut(s string) (word, rest string) {
	word, rest, _ = strings.Cut(s, " ")
	return word, strings.TrimSpace(rest)
}

func selectorArg(s string) (selector, rest string, err error) {
	if s == "" {
		return "", "", nil
	}
	if q := s[0]; q == '"' || q == '\'' {
		end := strings.IndexByte(s[1:], q)
		if end < 0 {
			return "", "", errors.New("unterminated quote in selector")
		}
		return s[1 : end+1], strings.TrimSpace(s[end+2:]), nil
	}
	selector, rest = cut(s)
	return selector, rest, nil
}
