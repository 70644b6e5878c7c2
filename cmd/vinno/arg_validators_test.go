package main

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestArgCount(t *testing.T) {
	tests := []struct {
		name    string
		check   cobra.PositionalArgs
		args    []string
		wantErr string
	}{
		{name: "paths missing", check: requirePaths, wantErr: "at least one path is required"},
		{name: "paths blank", check: requirePaths, args: []string{"a.txt", " "}, wantErr: "at least one path is required"},
		{name: "paths many", check: requirePaths, args: []string{"a.txt", "b.txt", "c.txt"}},
		{name: "ref ids missing", check: requireRefIDs, wantErr: "reference id is required"},
		{name: "one ref id", check: requireOneRefID, args: []string{"0b9c"}},
		{name: "two ref ids", check: requireOneRefID, args: []string{"0b9c", "1f2e"}, wantErr: "exactly one reference id is required"},
		{name: "size", check: requireSize, args: []string{"5MiB"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check(nil, tt.args)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.wantErr {
				t.Fatalf("expected %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCLIRemoveWithoutIDs(t *testing.T) {
	cfg := testConfig(t)
	if _, err := runCLI(t, cfg, "--principal", "alice", "rm"); err == nil || err.Error() != "reference id is required" {
		t.Fatalf("expected reference id error, got %v", err)
	}
}
