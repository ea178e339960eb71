package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"sitesmith/internal/filetree"
	"sitesmith/internal/mount"
	"sitesmith/internal/render"
	"sitesmith/internal/steps"
)

var parseJSON bool

var parseCmd = &cobra.Command{
	Use:   "parse <file|->",
	Short: "Parse a saved model response and show its steps, tree and mount descriptor",
	Args:  cobra.ExactArgs(1),
	RunE:  runParse,
}

func init() {
	parseCmd.Flags().BoolVar(&parseJSON, "json", false, "Print only the mount descriptor as JSON")
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	list, report := steps.ParseReport(string(data))
	list = steps.Pending(list)
	steps.Number(list, 1)

	tree := filetree.New()
	res := tree.ApplySteps(list)
	for _, i := range res.Applied {
		list[i].Status = steps.StatusCompleted
	}
	for _, r := range res.Rejected {
		list[r.Index].Status = steps.StatusCompleted
	}

	desc, err := json.MarshalIndent(mount.Project(tree), "", "  ")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if parseJSON {
		fmt.Fprintf(out, "%s\n", desc)
		return nil
	}

	p := render.New(out)
	p.Markdown(render.Steps(list))
	p.Markdown(render.Tree(tree))
	if rj := render.Rejections(res.Rejected); rj != "" {
		p.Markdown(rj)
	}
	for _, d := range report.Dropped {
		fmt.Fprintf(out, "dropped <%s> at offset %d: %s\n", d.Tag, d.Offset, d.Reason)
	}
	fmt.Fprintf(out, "%s\n", desc)
	return nil
}
