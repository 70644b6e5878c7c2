package main

import (
	"github.com/spf13/cobra"

	"vinnodrive/internal/config"
	"vinnodrive/internal/dedup"
	"vinnodrive/internal/store"
)

type infoResponse struct {
	DBPath          string `json:"db_path" yaml:"db_path"`
	BlobRoot        string `json:"blob_root" yaml:"blob_root"`
	store.StoreInfo `yaml:",inline"`
}

func newInfoCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show database and blob store info",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), cfg, func(svc dedup.Service) error {
				info, err := svc.Info(cmd.Context())
				if err != nil {
					return err
				}
				resp := infoResponse{DBPath: cfg.DBPath, BlobRoot: cfg.BlobRoot, StoreInfo: *info}

				if flags.structured() {
					return writeStructured(resp)
				}

				_ = writePlain("db_path: %s\n", resp.DBPath)
				_ = writePlain("blob_root: %s\n", resp.BlobRoot)
				_ = writePlain("schema_version: %d\n", info.SchemaVersion)
				_ = writePlain("principals: %d\n", info.PrincipalCount)
				_ = writePlain("references: %d\n", info.RefCount)
				_ = writePlain("blobs: %d\n", info.BlobCount)
				_ = writePlain("logical_bytes: %s\n", formatSize(info.LogicalBytes))
				return writePlain("physical_bytes: %s\n", formatSize(info.PhysicalBytes))
			})
		},
	}
}
