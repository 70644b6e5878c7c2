package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vinnodrive/internal/config"
)

const principalEnvKey = "VINNO_PRINCIPAL"

// globalFlags holds persistent flags shared by every subcommand.
type globalFlags struct {
	JSON      bool
	Output    string
	Principal string
	LogLevel  string
}

// structured reports whether results go through the output formatter.
func (g *globalFlags) structured() bool {
	return g.JSON || g.Output != ""
}

func (g *globalFlags) requirePrincipal() (string, error) {
	principal := strings.TrimSpace(g.Principal)
	if principal == "" {
		principal = strings.TrimSpace(os.Getenv(principalEnvKey))
	}
	if principal == "" {
		return "", fmt.Errorf("--principal is required (or set %s)", principalEnvKey)
	}
	return principal, nil
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "vinno",
		Short:         "Vinno stores files once and tracks who references them",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := setupLogging(flags.LogLevel, cfg.LogLevel, flags.structured())
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(logStderr, warning)
			}
			return configureOutput(flags)
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&flags.Output, "output", "", "structured output format (json, yaml)")
	cmd.PersistentFlags().StringVar(&flags.Principal, "principal", "", "principal that owns the files")
	cmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newIngestCmd(cfg, flags),
		newListCmd(cfg, flags),
		newRemoveCmd(cfg, flags),
		newGetCmd(cfg, flags),
		newStatsCmd(cfg, flags),
		newInfoCmd(cfg, flags),
		newQuotaCmd(cfg, flags),
		newAdminCmd(cfg, flags),
		newMigrateCmd(cfg, flags),
		newConfigCmd(cfg, flags),
	)

	return cmd
}
