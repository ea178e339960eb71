package prompts

import (
	"strings"
	"testing"

	"sitesmith/internal/steps"
)

func TestForName(t *testing.T) {
	for _, answer := range []string{"react", " React\n", "'node'", "node."} {
		if _, ok := ForName(answer); !ok {
			t.Fatalf("ForName(%q) should resolve", answer)
		}
	}
	if _, ok := ForName("vue"); ok {
		t.Fatal("unknown template resolved")
	}
}

func TestTemplatesParseIntoSteps(t *testing.T) {
	for _, name := range []string{"react", "node"} {
		tpl, _ := ForName(name)
		list, report := steps.ParseReport(tpl.UIPrompts[0])
		if len(report.Dropped) != 0 {
			t.Fatalf("%s template dropped fragments: %+v", name, report.Dropped)
		}
		var hasManifest bool
		for _, s := range list {
			if s.Path == "package.json" {
				hasManifest = true
			}
		}
		if !hasManifest {
			t.Fatalf("%s template has no package.json", name)
		}
	}
}

func TestNodeTemplateUsesNodeArtifact(t *testing.T) {
	tpl, _ := ForName("node")
	if len(tpl.Prompts) != 1 || !strings.Contains(tpl.Prompts[0], "node-starter") {
		t.Fatalf("node prompts should describe the node artifact: %v", tpl.Prompts)
	}
	react, _ := ForName("react")
	if len(react.Prompts) != 2 || !strings.Contains(react.Prompts[1], "vite-react-typescript-starter") {
		t.Fatalf("react prompts = %v", react.Prompts)
	}
}

func TestCombineIncludesMetadata(t *testing.T) {
	SetMetadata("Install command: npm install")
	defer SetMetadata("")
	got := Combine("Prefer TypeScript.")
	if !strings.HasPrefix(got, Base()) {
		t.Fatal("combined prompt should start with the base prompt")
	}
	if !strings.Contains(got, "## Environment Context\nInstall command: npm install") || !strings.HasSuffix(got, "Prefer TypeScript.") {
		t.Fatalf("combined = %q", got)
	}
}
