package main

import (
	"go/parser"
	"go/token"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
)

// Commands reach metadata and bytes through withService so every operation
// runs under the coordinator's locking and quota rules. Only the files listed
// here may import the lower layers directly.
var lowerLayerImporters = map[string][]string{
	"vinnodrive/internal/store":     {"service.go", "migrate.go", "info.go"},
	"vinnodrive/internal/blobstore": {"service.go"},
}

func TestCommandsGoThroughService(t *testing.T) {
	entries, err := os.ReadDir(".")
	if err != nil {
		t.Fatalf("read package dir: %v", err)
	}
	fset := token.NewFileSet()
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, name, nil, parser.ImportsOnly)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		for _, spec := range file.Imports {
			path, err := strconv.Unquote(spec.Path.Value)
			if err != nil {
				t.Fatalf("%s: bad import %s", name, spec.Path.Value)
			}
			allowed, guarded := lowerLayerImporters[path]
			if !guarded {
				continue
			}
			if !slices.Contains(allowed, name) {
				t.Errorf("%s imports %s; go through withService instead", name, path)
			}
		}
	}
}

func TestWithServiceCallersUseCommandContext(t *testing.T) {
	for _, name := range []string{"admin.go", "files.go", "quota.go", "info.go"} {
		data, err := os.ReadFile(name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, "withService(") && !strings.Contains(line, "withService(cmd.Context()") {
				t.Errorf("%s:%d: withService must receive cmd.Context()", name, i+1)
			}
		}
	}
}
