package scanner

import (
	"reflect"
	"testing"

	"github.com/spf13/afero"
)

func TestDiscoverFiltersAndSorts(t *testing.T) {
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/repo/main.go":            "package main",
		"/repo/web/index.HTML":     "<html>",
		"/repo/web/app.js":         "let a",
		"/repo/README.md":          "# readme",
		"/repo/.git/config.yaml":   "x: 1",
		"/repo/.env.sh":            "export A=1",
		"/repo/lib/util/helper.py": "def f(): pass",
	}
	for p, c := range files {
		if err := afero.WriteFile(fs, p, []byte(c), 0o644); err != nil {
			t.Fatalf("WriteFile %s: %v", p, err)
		}
	}

	got, err := Discover(fs, "/repo")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	want := []string{"lib/util/helper.py", "main.go", "web/app.js", "web/index.HTML"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Discover = %v, want %v", got, want)
	}
}

func TestDiscoverRejectsMissingRoot(t *testing.T) {
	if _, err := Discover(afero.NewMemMapFs(), "/nope"); err == nil {
		t.Fatal("expected error for missing root")
	}
}
