package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sitesmith/internal/config"
	"sitesmith/internal/journal"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [session]",
	Short: "List past build sessions, or the events of one session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Show only the last n events")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadUserConfig()
	if err != nil {
		return err
	}
	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return err
	}
	defer j.Close()

	ctx := cmd.Context()
	sessions, err := j.Sessions(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	if len(args) == 0 {
		if len(sessions) == 0 {
			fmt.Fprintln(w, "No sessions recorded.")
			return nil
		}
		fmt.Fprintln(w, "SESSION\tSTARTED\tEVENTS\tPROMPT")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.Session, s.Started.Format("2006-01-02 15:04"), s.Events, truncate(s.Prompt, 50))
		}
		return nil
	}

	id, err := resolveSession(sessions, args[0])
	if err != nil {
		return err
	}
	events, err := j.Events(ctx, id, historyLimit)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "TIME\tKIND\tDETAIL")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\n", ev.At.Format("15:04:05.000"), ev.Kind, ev.Detail)
	}
	return nil
}

// resolveSession accepts a full id or an unambiguous prefix.
func resolveSession(sessions []journal.Summary, want string) (string, error) {
	var matches []string
	for _, s := range sessions {
		if s.Session == want {
			return want, nil
		}
		if strings.HasPrefix(s.Session, want) {
			matches = append(matches, s.Session)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no session matches %q", want)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q matches %d sessions", want, len(matches))
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
