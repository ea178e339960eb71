package preview

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"sitesmith/internal/filetree"
	"sitesmith/internal/steps"
)

const indexHTML = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="UTF-8" />
    <meta name="description" content="Track your tasks" />
    <link rel="icon" type="image/svg+xml" href="/vite.svg" />
    <link rel="stylesheet" href="https://cdn.example.com/base.css" />
    <title>  Todo
      App </title>
  </head>
  <body>
    <div id="root"></div>
    <h1>Todos</h1>
    <script type="module" src="/src/main.tsx"></script>
    <script src="./src/extra.js"></script>
  </body>
</html>`

func treeWith(t *testing.T, files map[string]string) *filetree.Tree {
	t.Helper()
	tree := filetree.New()
	for p, c := range files {
		if err := tree.Apply(steps.Step{Kind: steps.KindCreateFile, Path: p, Content: c}); err != nil {
			t.Fatalf("apply %s: %v", p, err)
		}
	}
	return tree
}

func TestFromTree(t *testing.T) {
	tree := treeWith(t, map[string]string{
		"index.html":   indexHTML,
		"src/main.tsx": "import './index.css'",
	})

	page, err := FromTree(tree)
	if err != nil {
		t.Fatal(err)
	}
	if page.Source != "index.html" || page.Title != "Todo App" || page.Description != "Track your tasks" {
		t.Fatalf("page = %+v", page)
	}
	if !reflect.DeepEqual(page.Headings, []string{"Todos"}) {
		t.Fatalf("headings = %v", page.Headings)
	}
	want := []string{"src/extra.js", "src/main.tsx", "vite.svg"}
	if !reflect.DeepEqual(page.Assets, want) {
		t.Fatalf("assets = %v, want %v", page.Assets, want)
	}

	missing := MissingAssets(tree, page)
	if !reflect.DeepEqual(missing, []string{"src/extra.js", "vite.svg"}) {
		t.Fatalf("missing = %v", missing)
	}
}

func TestFromTreePublicIndexAndPublicAssets(t *testing.T) {
	tree := treeWith(t, map[string]string{
		"public/index.html":  `<html><head><title>Hi</title><link rel="icon" href="/favicon.ico"></head></html>`,
		"public/favicon.ico": "x",
	})
	page, err := FromTree(tree)
	if err != nil {
		t.Fatal(err)
	}
	if page.Source != "public/index.html" || page.Title != "Hi" {
		t.Fatalf("page = %+v", page)
	}
	if missing := MissingAssets(tree, page); len(missing) != 0 {
		t.Fatalf("missing = %v", missing)
	}
}

func TestFromTreeWithoutIndex(t *testing.T) {
	tree := treeWith(t, map[string]string{"server.js": "console.log(1)"})
	if _, err := FromTree(tree); !errors.Is(err, ErrNoIndex) {
		t.Fatalf("err = %v", err)
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(indexHTML))
	}))
	defer srv.Close()

	page, err := NewFetcher(time.Second).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if page.Status != http.StatusOK || page.Title != "Todo App" || page.Truncated {
		t.Fatalf("page = %+v", page)
	}
}

func TestFetchRejectsNonHTTP(t *testing.T) {
	if _, err := NewFetcher(0).Fetch(context.Background(), "file:///etc/passwd"); err == nil {
		t.Fatal("expected error for file url")
	}
}
