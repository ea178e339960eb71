package steps

import (
	"html"
	"strings"
)

const (
	tagFile     = "file"
	tagAction   = "boltaction"
	tagArtifact = "boltartifact"
)

// Fragment describes a piece of markup the parser recognised but dropped.
type Fragment struct {
	Offset int    `json:"offset"`
	Tag    string `json:"tag"`
	Reason string `json:"reason"`
}

// Report lists dropped fragments in document order.
type Report struct {
	Dropped []Fragment `json:"dropped,omitempty"`
}

// Parse extracts the ordered build steps from a model response. Malformed
// fragments are skipped and everything outside recognised tags is ignored.
func Parse(text string) []Step {
	list, _ := ParseReport(text)
	return list
}

// ParseReport is Parse plus the fragments that were dropped along the way.
func ParseReport(text string) ([]Step, Report) {
	sc := scan(text)
	return sc.steps, sc.report
}

// StripActions returns the commentary surrounding the recognised tags.
func StripActions(text string) string {
	sc := scan(text)
	return strings.TrimSpace(sc.prose.String())
}

type scanner struct {
	src      string
	lower    string
	artifact string
	steps    []Step
	report   Report
	prose    strings.Builder
	proseAt  int
}

func scan(text string) *scanner {
	sc := &scanner{src: text, lower: asciiLower(text)}
	sc.run()
	return sc
}

func (sc *scanner) run() {
	pos := 0
	for pos < len(sc.src) {
		i := strings.IndexByte(sc.src[pos:], '<')
		if i < 0 {
			break
		}
		at := pos + i
		t, ok := readTag(sc.src, at)
		name := strings.ToLower(t.name)
		if !ok {
			if isKnown(name) {
				sc.drop(at, name, "malformed tag")
			}
			pos = at + 1
			continue
		}
		switch {
		case name == tagArtifact:
			sc.cut(at, t.end)
			if t.closing {
				sc.artifact = ""
			} else {
				sc.artifact = strings.TrimSpace(t.attrs["title"])
			}
			pos = t.end
		case isElement(name) && t.closing:
			sc.cut(at, t.end)
			sc.drop(at, name, "stray closing tag")
			pos = t.end
		case isElement(name):
			pos = sc.element(t, name)
		default:
			pos = t.end
		}
	}
	sc.prose.WriteString(sc.src[sc.proseAt:])
}

// element consumes one recognised element starting at open and returns the
// offset where scanning resumes.
func (sc *scanner) element(open tagToken, name string) int {
	if open.selfClosing {
		sc.cut(open.start, open.end)
		sc.emit(open, name, "")
		return open.end
	}

	closeStart, closeEnd := sc.findClose(name, open.end)
	if closeStart < 0 {
		sc.cut(open.start, open.end)
		sc.drop(open.start, name, "unterminated tag")
		return open.end
	}
	if inner := sc.findOpen(name, open.end); inner >= 0 && inner < closeStart {
		sc.cut(open.start, open.end)
		sc.drop(open.start, name, "nested tag")
		return inner
	}

	sc.cut(open.start, closeEnd)
	sc.emit(open, name, sc.src[open.end:closeStart])
	return closeEnd
}

func (sc *scanner) emit(open tagToken, name, body string) {
	switch name {
	case tagFile:
		path := firstAttr(open.attrs, "path", "filepath")
		if path == "" {
			sc.drop(open.start, name, "missing path attribute")
			return
		}
		sc.add(fileStep(path, body, sc.artifact))
	case tagAction:
		switch strings.ToLower(strings.TrimSpace(open.attrs["type"])) {
		case "file":
			path := firstAttr(open.attrs, "filepath", "path")
			if path == "" {
				sc.drop(open.start, name, "missing filePath attribute")
				return
			}
			sc.add(fileStep(path, body, sc.artifact))
		case "shell":
			command := strings.TrimSpace(body)
			if command == "" {
				sc.drop(open.start, name, "empty shell command")
				return
			}
			sc.add(Step{
				Kind:        KindRunShell,
				Title:       "Run command",
				Description: sc.artifact,
				Content:     command,
			})
		default:
			sc.drop(open.start, name, "unsupported action type")
		}
	}
}

func fileStep(path, body, artifact string) Step {
	return Step{
		Kind:        KindCreateFile,
		Title:       "Create " + path,
		Description: artifact,
		Path:        path,
		Content:     trimPadding(body),
	}
}

func (sc *scanner) add(s Step) {
	sc.steps = append(sc.steps, s)
}

func (sc *scanner) drop(offset int, name, reason string) {
	sc.report.Dropped = append(sc.report.Dropped, Fragment{Offset: offset, Tag: name, Reason: reason})
}

// cut removes src[start:end] from the prose stream.
func (sc *scanner) cut(start, end int) {
	if start > sc.proseAt {
		sc.prose.WriteString(sc.src[sc.proseAt:start])
	}
	if end > sc.proseAt {
		sc.proseAt = end
	}
}

func (sc *scanner) findClose(name string, from int) (int, int) {
	needle := "</" + name
	for from < len(sc.lower) {
		i := strings.Index(sc.lower[from:], needle)
		if i < 0 {
			return -1, -1
		}
		start := from + i
		j := start + len(needle)
		for j < len(sc.src) && isSpace(sc.src[j]) {
			j++
		}
		if j < len(sc.src) && sc.src[j] == '>' {
			return start, j + 1
		}
		from = start + len(needle)
	}
	return -1, -1
}

func (sc *scanner) findOpen(name string, from int) int {
	needle := "<" + name
	for from < len(sc.lower) {
		i := strings.Index(sc.lower[from:], needle)
		if i < 0 {
			return -1
		}
		start := from + i
		j := start + len(needle)
		if j < len(sc.src) && (isSpace(sc.src[j]) || sc.src[j] == '>' || sc.src[j] == '/') {
			return start
		}
		from = j
	}
	return -1
}

type tagToken struct {
	name        string
	attrs       map[string]string
	start       int
	end         int
	closing     bool
	selfClosing bool
}

// readTag parses the tag opening at src[at]. The returned token carries the
// tag name even when ok is false so callers can report what was lost.
func readTag(src string, at int) (tagToken, bool) {
	t := tagToken{start: at}
	i := at + 1
	if i < len(src) && src[i] == '/' {
		t.closing = true
		i++
	}
	nameStart := i
	for i < len(src) && isNameByte(src[i]) {
		i++
	}
	if i == nameStart {
		return t, false
	}
	t.name = src[nameStart:i]

	for {
		for i < len(src) && isSpace(src[i]) {
			i++
		}
		if i >= len(src) || src[i] == '<' {
			return t, false
		}
		switch {
		case src[i] == '>':
			t.end = i + 1
			return t, true
		case src[i] == '/' && i+1 < len(src) && src[i+1] == '>':
			t.selfClosing = true
			t.end = i + 2
			return t, true
		}

		keyStart := i
		for i < len(src) && !isSpace(src[i]) && src[i] != '=' && src[i] != '>' && src[i] != '/' && src[i] != '<' {
			i++
		}
		if i == keyStart {
			// lone '/' that is not part of "/>"
			i++
			continue
		}
		key := strings.ToLower(src[keyStart:i])
		for i < len(src) && isSpace(src[i]) {
			i++
		}
		if i >= len(src) || src[i] != '=' {
			if t.attrs == nil {
				t.attrs = make(map[string]string)
			}
			t.attrs[key] = ""
			continue
		}
		i++
		for i < len(src) && isSpace(src[i]) {
			i++
		}
		if i >= len(src) {
			return t, false
		}
		var value string
		if q := src[i]; q == '"' || q == '\'' {
			end := strings.IndexByte(src[i+1:], q)
			if end < 0 {
				return t, false
			}
			value = src[i+1 : i+1+end]
			if strings.IndexByte(value, '<') >= 0 {
				return t, false
			}
			i += end + 2
		} else {
			valStart := i
			for i < len(src) && !isSpace(src[i]) && src[i] != '>' && src[i] != '<' {
				i++
			}
			value = src[valStart:i]
		}
		if t.attrs == nil {
			t.attrs = make(map[string]string)
		}
		t.attrs[key] = html.UnescapeString(value)
	}
}

// trimPadding drops the line break that separates the body from its tags,
// along with horizontal padding on that line. Other blank lines are kept.
func trimPadding(body string) string {
	i := 0
	for i < len(body) && (body[i] == ' ' || body[i] == '\t') {
		i++
	}
	if strings.HasPrefix(body[i:], "\r\n") {
		body = body[i+2:]
	} else if strings.HasPrefix(body[i:], "\n") {
		body = body[i+1:]
	}

	j := len(body)
	for j > 0 && (body[j-1] == ' ' || body[j-1] == '\t') {
		j--
	}
	if j > 0 && body[j-1] == '\n' {
		j--
		if j > 0 && body[j-1] == '\r' {
			j--
		}
		body = body[:j]
	}
	return body
}

func firstAttr(attrs map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(attrs[k]); v != "" {
			return v
		}
	}
	return ""
}

func isElement(name string) bool {
	return name == tagFile || name == tagAction
}

func isKnown(name string) bool {
	return isElement(name) || name == tagArtifact
}

func isNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_' || c == ':'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// asciiLower lowercases A-Z only so byte offsets stay aligned with the source.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
