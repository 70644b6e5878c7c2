package main

import (
	"context"
	"errors"
	"fmt"

	"vinnodrive/internal/dedup"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	var dedupErr *dedup.Error
	if !errors.As(err, &dedupErr) {
		lines := []string{err.Error()}
		if errors.Is(err, context.Canceled) {
			lines = append(lines, "hint: the operation was interrupted; nothing was committed.")
		}
		return uniqueLines(lines)
	}

	lines := []string{fmt.Sprintf("error %d: %s", dedup.CodeOf(err), err.Error())}
	switch dedup.KindOf(err) {
	case dedup.KindQuotaExceeded:
		lines = append(lines,
			"hint: check usage with: vinno quota show",
			"hint: remove files with: vinno rm <id>, or raise the limit with: vinno quota set <size>",
		)
	case dedup.KindNotFound:
		lines = append(lines, "hint: list your files with: vinno ls")
	case dedup.KindInvariantViolation:
		lines = append(lines,
			"hint: metadata is inconsistent; inspect it with: vinno admin fsck",
			"hint: rebuild the ledger with: vinno admin repair-quota --all",
		)
	case dedup.KindStorageIO:
		lines = append(lines, "hint: verify VINNO_BLOB_ROOT points to a writable directory.")
	case dedup.KindInternal:
		lines = append(lines, "hint: verify VINNO_DB points to a writable database; rerun with --log-level debug for details.")
	}
	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
