package main

import (
	"fmt"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"vinnodrive/internal/config"
	"vinnodrive/internal/dedup"
	"vinnodrive/internal/models"
)

func newStatsCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize unique and deduplicated bytes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, err := flags.requirePrincipal()
			if err != nil {
				return err
			}
			return withService(cmd.Context(), cfg, func(svc dedup.Service) error {
				stats, err := svc.Stats(cmd.Context(), principal)
				if err != nil {
					return err
				}
				if flags.structured() {
					return writeStructured(stats)
				}
				_ = writePlain("files: %d\n", stats.FileCount)
				_ = writePlain("logical: %s\n", formatSize(stats.LogicalBytes))
				_ = writePlain("unique: %s\n", formatSize(stats.UniqueBytes))
				_ = writePlain("saved by dedup: %s\n", formatSize(stats.DuplicateBytes))
				return writePlain("quota: %s of %s used, %s left\n",
					formatSize(stats.StorageUsed), formatSize(stats.StorageLimit), formatSize(stats.RemainingBytes))
			})
		},
	}
}

func newQuotaCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show or change a principal's storage limit",
	}

	cmd.AddCommand(newQuotaShowCmd(cfg, flags))
	cmd.AddCommand(newQuotaSetCmd(cfg, flags))
	return cmd
}

func newQuotaShowCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the storage ledger entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, err := flags.requirePrincipal()
			if err != nil {
				return err
			}
			return withService(cmd.Context(), cfg, func(svc dedup.Service) error {
				quota, err := svc.Usage(cmd.Context(), principal)
				if err != nil {
					return err
				}
				return writeQuota(flags, quota)
			})
		},
	}
}

func newQuotaSetCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <size>",
		Short: "Set the storage limit (e.g. 500MiB, 2GiB)",
		Args:  requireSize,
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, err := flags.requirePrincipal()
			if err != nil {
				return err
			}
			limit, err := units.RAMInBytes(args[0])
			if err != nil {
				return fmt.Errorf("invalid size %q: %w", args[0], err)
			}
			return withService(cmd.Context(), cfg, func(svc dedup.Service) error {
				quota, err := svc.SetQuota(cmd.Context(), principal, limit)
				if err != nil {
					return err
				}
				return writeQuota(flags, quota)
			})
		},
	}
}

func writeQuota(flags *globalFlags, quota models.Quota) error {
	if flags.structured() {
		return writeStructured(quota)
	}
	_ = writePlain("principal: %s\n", quota.PrincipalID)
	_ = writePlain("limit: %s\n", formatSize(quota.StorageLimit))
	_ = writePlain("used: %s\n", formatSize(quota.StorageUsed))
	return writePlain("remaining: %s\n", formatSize(quota.Remaining()))
}
