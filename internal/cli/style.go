package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

type role int

const (
	roleTitle role = iota
	roleMuted
	roleOK
	roleFail
	roleWarn
)

var palette = map[role]lipgloss.Style{
	roleTitle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
	roleMuted: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	roleOK:    lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
	roleFail:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
	roleWarn:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220")),
}

// styles colours report output. Color is off unless w is a terminal and
// the command is not writing JSON.
type styles struct {
	color bool
}

func newStyles(w io.Writer, jsonMode bool) styles {
	f, ok := w.(*os.File)
	return styles{color: !jsonMode && ok && term.IsTerminal(int(f.Fd()))}
}

func (s styles) paint(r role, text string) string {
	if !s.color {
		return text
	}
	return palette[r].Render(text)
}

func (s styles) banner() string { return s.paint(roleTitle, "docintake") }
func (s styles) sectionHeader(t string) string { return s.paint(roleTitle, t) }
func (s styles) dim(text string) string { return s.paint(roleMuted, text) }
func (s styles) errPrefix() string { return s.paint(roleFail, "ERROR:") }
func (s styles) warnPrefix() string { return s.paint(roleWarn, "WARNING:") }

// kv renders "  Key:          value" with the key padded to one column.
func (s styles) kv(key, value string) string {
	return "  " + s.paint(roleMuted, fmt.Sprintf("%-14s", key+":")) + " " + value
}

// status colours a run or verdict label by outcome.
func (s styles) status(label string, ok bool) string {
	if ok {
		return s.paint(roleOK, label)
	}
	return s.paint(roleFail, label)
}

func (s styles) stat(label string, value any) string {
	return s.paint(roleMuted, label) + "=" + fmt.Sprint(value)
}

func (s styles) rule() string {
	return s.paint(roleMuted, strings.Repeat("─", 38))
}
