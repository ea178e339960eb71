package credentials

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter reads answers for the setup wizard. Secrets are read without echo
// when the input is a terminal.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

// NewPrompter wraps in and out. When in is a terminal file, secret entry is hidden.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.tty = true
	}
	return p
}

func (p *Prompter) line(msg string) string {
	fmt.Fprintf(p.out, "%s: ", msg)
	line, _ := p.in.ReadString('\n')
	return strings.TrimSpace(line)
}

func (p *Prompter) lineWithDefault(msg, defaultValue string) string {
	fmt.Fprintf(p.out, "%s [%s]: ", msg, defaultValue)
	line, _ := p.in.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultValue
	}
	return line
}

func (p *Prompter) secret(msg string) (string, error) {
	if !p.tty {
		return p.line(msg), nil
	}
	fmt.Fprintf(p.out, "%s: ", msg)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Onboard runs the interactive first-time setup and stores an OpenRouter key.
func Onboard(manager *Manager, p *Prompter) (*Credentials, error) {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "═══════════════════════════════════════════════════════════")
	fmt.Fprintln(p.out, "  Welcome to sitesmith! Let's get you set up.")
	fmt.Fprintln(p.out, "═══════════════════════════════════════════════════════════")
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "You'll need an OpenRouter API key.")
	fmt.Fprintln(p.out, "Get one at: https://openrouter.ai/keys")
	fmt.Fprintln(p.out)

	creds, err := manager.Load()
	if err != nil {
		return nil, err
	}

	apiKey, err := readAPIKey(p)
	if err != nil {
		return nil, err
	}

	creds.DefaultProvider = "openrouter"
	creds.SetProvider("openrouter", apiKey)

	if err := manager.Save(creds); err != nil {
		return nil, fmt.Errorf("save credentials: %w", err)
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "✓ API key saved securely to:", manager.Path())
	fmt.Fprintln(p.out)
	return creds, nil
}

func readAPIKey(p *Prompter) (string, error) {
	for attempt := 0; attempt < 3; attempt++ {
		apiKey, err := p.secret("Enter your OPENROUTER API key")
		if err != nil {
			return "", err
		}
		if apiKey == "" {
			fmt.Fprintln(p.out, "❌ API key cannot be empty. Please try again.")
			continue
		}
		if !strings.HasPrefix(apiKey, "sk-") {
			fmt.Fprintln(p.out, "⚠ Warning: API key doesn't look valid (should start with 'sk-')")
			confirm := p.lineWithDefault("Continue anyway? [y/n]", "n")
			if !strings.HasPrefix(strings.ToLower(confirm), "y") {
				continue
			}
		}
		return apiKey, nil
	}
	return "", fmt.Errorf("no API key entered")
}

// SetupMenu shows the credential management menu.
func SetupMenu(manager *Manager, p *Prompter) error {
	creds, err := manager.Load()
	if err != nil {
		return err
	}

	for {
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, "Configured Providers:")
		names := creds.ListProviders()
		if len(names) == 0 {
			fmt.Fprintln(p.out, "  (none)")
		}
		for _, name := range names {
			active := ""
			if name == creds.DefaultProvider {
				active = " (active)"
			}
			fmt.Fprintf(p.out, "  ✓ %s%s\n", strings.ToUpper(name), active)
		}
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, "Options:")
		fmt.Fprintln(p.out, "  1) Add/update OpenRouter API key")
		fmt.Fprintln(p.out, "  2) Remove OpenRouter API key")
		fmt.Fprintln(p.out, "  3) Exit")
		fmt.Fprintln(p.out)

		switch p.lineWithDefault("Choice", "3") {
		case "1":
			apiKey, err := readAPIKey(p)
			if err != nil {
				fmt.Fprintln(p.out, "❌ Error:", err)
				continue
			}
			creds.SetProvider("openrouter", apiKey)
			if creds.DefaultProvider == "" {
				creds.DefaultProvider = "openrouter"
			}
			if err := manager.Save(creds); err != nil {
				return err
			}
			fmt.Fprintln(p.out, "✓ API key saved")
		case "2":
			confirm := p.lineWithDefault("Really remove OPENROUTER? [y/n]", "n")
			if !strings.HasPrefix(strings.ToLower(confirm), "y") {
				fmt.Fprintln(p.out, "Cancelled")
				continue
			}
			creds.RemoveProvider("openrouter")
			if err := manager.Save(creds); err != nil {
				return err
			}
			fmt.Fprintln(p.out, "✓ Removed OPENROUTER")
		case "3", "exit", "quit", "q":
			return nil
		default:
			fmt.Fprintln(p.out, "❌ Invalid choice")
		}
	}
}
