package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

// argCount accepts between min and max positional arguments; a negative max
// means no upper bound. Blank arguments are rejected with the same message.
func argCount(min, max int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < min || (max >= 0 && len(args) > max) {
			return errors.New(message)
		}
		for _, arg := range args {
			if strings.TrimSpace(arg) == "" {
				return errors.New(message)
			}
		}
		return nil
	}
}

var (
	requirePaths    = argCount(1, -1, "at least one path is required")
	requireRefIDs   = argCount(1, -1, "reference id is required")
	requireOneRefID = argCount(1, 1, "exactly one reference id is required")
	requireSize     = argCount(1, 1, "size is required")
)
