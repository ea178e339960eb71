// Package render formats build session state as markdown and prints it,
// styled with glamour when the output is a terminal.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"sitesmith/internal/filetree"
	"sitesmith/internal/logging"
	"sitesmith/internal/reconciler"
	"sitesmith/internal/steps"
)

// Printer writes markdown to out.
type Printer struct {
	out io.Writer
	md  *glamour.TermRenderer
}

// New returns a printer for out. Styling is enabled only for terminals.
func New(out io.Writer) *Printer {
	p := &Printer{out: out}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(0),
		); err == nil {
			p.md = r
		}
	}
	return p
}

// NewStyled returns a printer that always renders with the given glamour style.
func NewStyled(out io.Writer, style string) (*Printer, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(0),
	)
	if err != nil {
		return nil, err
	}
	return &Printer{out: out, md: r}, nil
}

// Styled reports whether output goes through glamour.
func (p *Printer) Styled() bool { return p.md != nil }

// Markdown prints text, rendered when styling is on.
func (p *Printer) Markdown(text string) {
	if p.md == nil || strings.TrimSpace(text) == "" {
		fmt.Fprintf(p.out, "%s\n", text)
		return
	}
	rendered, err := p.md.Render(text)
	if err != nil {
		logging.DevLog("markdown render failed: %v", err)
		fmt.Fprintf(p.out, "%s\n", text)
		return
	}
	fmt.Fprint(p.out, strings.TrimRight(rendered, "\n")+"\n")
}

// Plain prints text without rendering.
func (p *Printer) Plain(format string, args ...interface{}) {
	fmt.Fprintf(p.out, format, args...)
}

var statusMark = map[steps.Status]string{
	steps.StatusPending:    "[ ]",
	steps.StatusInProgress: "[~]",
	steps.StatusCompleted:  "[x]",
}

// Steps renders the step list as a markdown checklist.
func Steps(list []steps.Step) string {
	if len(list) == 0 {
		return "_No steps yet._"
	}
	var b strings.Builder
	b.WriteString("## Steps\n\n")
	for _, s := range list {
		mark := statusMark[s.Status]
		if mark == "" {
			mark = "[ ]"
		}
		fmt.Fprintf(&b, "- %s %d. %s", mark, s.ID, s.Title)
		switch s.Kind {
		case steps.KindRunShell:
			fmt.Fprintf(&b, " `%s`", firstLine(s.Content))
		case steps.KindCreateFile, steps.KindCreateFolder:
			if s.Title != "Create "+s.Path {
				fmt.Fprintf(&b, " (`%s`)", s.Path)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Tree renders the file tree as an indented listing in a code block.
func Tree(t *filetree.Tree) string {
	if t.Empty() {
		return "_The project is empty._"
	}
	var b strings.Builder
	b.WriteString("```\n")
	_ = t.Walk(func(n *filetree.Node, depth int) error {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.Name)
		if n.Kind == filetree.KindFolder {
			b.WriteByte('/')
		}
		b.WriteByte('\n')
		return nil
	})
	b.WriteString("```\n")
	return b.String()
}

// File renders one file as a fenced code block labelled by its extension.
func File(n *filetree.Node) string {
	lang := ""
	if i := strings.LastIndexByte(n.Name, '.'); i >= 0 {
		lang = n.Name[i+1:]
	}
	fence := "```"
	for strings.Contains(n.Content, fence) {
		fence += "`"
	}
	return fmt.Sprintf("**%s**\n\n%s%s\n%s\n%s\n", n.Path, fence, lang, strings.TrimRight(n.Content, "\n"), fence)
}

// Status renders the sandbox status with the output tail on failure.
func Status(st reconciler.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Sandbox:** %s", st.State)
	if st.URL != "" {
		fmt.Fprintf(&b, " at %s (%s)", st.URL, st.Source)
	}
	b.WriteByte('\n')
	if st.Err != nil {
		fmt.Fprintf(&b, "\n**Error:** %s\n", st.Err.Error())
		if len(st.Err.Output) > 0 {
			b.WriteString("\n```\n")
			b.WriteString(strings.Join(st.Err.Output, "\n"))
			b.WriteString("\n```\n")
		}
	}
	return b.String()
}

// Rejections renders the steps the tree refused.
func Rejections(list []filetree.Rejection) string {
	if len(list) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("**Rejected steps:**\n\n")
	for _, r := range list {
		fmt.Fprintf(&b, "- %d. `%s`: %v\n", r.Step.ID, r.Step.Path, r.Err)
	}
	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}
