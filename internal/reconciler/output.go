package reconciler

import (
	"regexp"
	"strings"
	"sync"
)

// ring keeps the last n output lines.
type ring struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newRing(n int) *ring {
	return &ring{lines: make([]string, n)}
}

func (r *ring) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lines) == 0 {
		return
	}
	r.lines[r.next] = line
	r.next++
	if r.next == len(r.lines) {
		r.next = 0
		r.full = true
	}
}

func (r *ring) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]string, r.next)
		copy(out, r.lines[:r.next])
		return out
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}

var (
	ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	localLine  = regexp.MustCompile(`Local:\s*(https?://\S+)`)
	localURL   = regexp.MustCompile(`https?://(?:localhost|127\.0\.0\.1|0\.0\.0\.0)(?::\d+)?(?:/\S*)?`)
)

// scrapeURL extracts the served address from a dev server output line.
// "Local: <url>" lines win over any other localhost URL.
func scrapeURL(line string) string {
	clean := ansiEscape.ReplaceAllString(line, "")
	if m := localLine.FindStringSubmatch(clean); m != nil {
		return m[1]
	}
	return localURL.FindString(clean)
}

// missingManifest reports install output that says the manifest does not exist.
func missingManifest(line, manifest string) bool {
	return strings.Contains(line, "ENOENT") && strings.Contains(line, manifest)
}
