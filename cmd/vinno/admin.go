package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vinnodrive/internal/config"
	"vinnodrive/internal/dedup"
)

func newAdminCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}

	cmd.AddCommand(newAdminRepairQuotaCmd(cfg, flags))
	cmd.AddCommand(newAdminFsckCmd(cfg, flags))
	cmd.AddCommand(newAdminGCBlobsCmd(cfg, flags))
	return cmd
}

func newAdminRepairQuotaCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "repair-quota",
		Short: "Recompute storage used from live references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var principal string
			if !all {
				var err error
				if principal, err = flags.requirePrincipal(); err != nil {
					return fmt.Errorf("%w, or pass --all", err)
				}
			}

			return withService(cmd.Context(), cfg, func(svc dedup.Service) error {
				var repairs []dedup.QuotaRepair
				if all {
					var err error
					if repairs, err = svc.RepairAllQuotas(cmd.Context()); err != nil {
						return err
					}
				} else {
					repair, err := svc.RepairQuota(cmd.Context(), principal)
					if err != nil {
						return err
					}
					repairs = []dedup.QuotaRepair{repair}
				}

				if flags.structured() {
					return writeStructured(repairs)
				}
				changed := 0
				for _, r := range repairs {
					if !r.Changed() {
						continue
					}
					changed++
					if err := writePlain("%s: %s -> %s\n", r.PrincipalID, formatSize(r.PreviousUsed), formatSize(r.StorageUsed)); err != nil {
						return err
					}
				}
				return writePlain("checked %d principals, repaired %d\n", len(repairs), changed)
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "repair every principal")
	return cmd
}

func newAdminFsckCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "fsck",
		Short: "Compare stored reference counts with live references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), cfg, func(svc dedup.Service) error {
				report, err := svc.CheckRefCounts(cmd.Context(), repair)
				if err != nil {
					return err
				}
				if flags.structured() {
					return writeStructured(report)
				}
				if len(report.Mismatches) == 0 {
					return writePlain("ref counts consistent\n")
				}
				for _, m := range report.Mismatches {
					if err := writePlain("%s: stored=%d live=%d\n", m.Digest, m.StoredCount, m.LiveRefCount); err != nil {
						return err
					}
				}
				if !repair {
					return writePlain("%d mismatches; rerun with --repair to fix\n", len(report.Mismatches))
				}
				return writePlain("repaired %d blobs, purged %d\n", report.Repaired, report.PurgedBlobs)
			})
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "reset stored counts to the live reference count")
	return cmd
}

func newAdminGCBlobsCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	var (
		dryRun    bool
		apply     bool
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "gc-blobs",
		Short: "Garbage-collect unreferenced blobs and stray files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if apply && dryRun {
				return fmt.Errorf("--apply and --dry-run are mutually exclusive")
			}
			if batchSize <= 0 {
				batchSize = cfg.GC.BatchSize
			}

			return withService(cmd.Context(), cfg, func(svc dedup.Service) error {
				resp, err := svc.GCBlobs(cmd.Context(), batchSize, apply)
				if err != nil {
					return err
				}
				if flags.structured() {
					return writeStructured(resp)
				}
				mode := "dry run"
				if !resp.DryRun {
					mode = "applied"
				}
				return writePlain("%s: candidates=%d deleted=%d failed=%d reclaimed=%s orphan_files=%d scratch_purged=%d\n",
					mode, resp.CandidateCount, resp.DeletedCount, resp.FailedCount, formatSize(resp.ReclaimedBytes), resp.OrphanFiles, resp.ScratchPurged)
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be reclaimed without deleting (default)")
	cmd.Flags().BoolVar(&apply, "apply", false, "delete unreferenced blobs")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "blobs examined per pass (default: gc.batch_size)")
	return cmd
}
