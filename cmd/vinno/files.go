package main

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"vinnodrive/internal/config"
	"vinnodrive/internal/dedup"
	"vinnodrive/internal/hasher"
	"vinnodrive/internal/models"
)

func newIngestCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	var (
		name        string
		contentType string
	)

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Store files, reusing content that is already stored",
		Args:  requirePaths,
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, err := flags.requirePrincipal()
			if err != nil {
				return err
			}
			if name != "" && len(args) > 1 {
				return fmt.Errorf("--name requires a single path")
			}
			alg, err := hasher.ParseAlgorithm(cfg.HashAlgorithm)
			if err != nil {
				return err
			}

			return withService(cmd.Context(), cfg, func(svc dedup.Service) error {
				refs := make([]models.Reference, 0, len(args))
				for _, path := range args {
					ref, err := ingestPath(cmd, svc, alg, principal, path, name, contentType)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					refs = append(refs, ref)
				}
				if flags.structured() {
					return writeStructured(refs)
				}
				for _, ref := range refs {
					state := "stored"
					if !ref.IsPrimary {
						state = "deduplicated"
					}
					if err := writePlain("%s %s %s (%s)\n", state, ref.ID, ref.Filename, formatSize(ref.SizeBytes)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "filename to record (default: base name of path)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type to record (default: detected)")
	return cmd
}

func ingestPath(cmd *cobra.Command, svc dedup.Service, alg hasher.Algorithm, principal, path, name, contentType string) (models.Reference, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Reference{}, err
	}
	defer f.Close()

	digest, size, err := hasher.Sum(alg, f)
	if err != nil {
		return models.Reference{}, err
	}
	if contentType == "" {
		if contentType, err = detectContentType(f, path); err != nil {
			return models.Reference{}, err
		}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return models.Reference{}, err
	}
	if name == "" {
		name = filepath.Base(path)
	}

	return svc.Ingest(cmd.Context(), dedup.IngestInput{
		PrincipalID: principal,
		Filename:    name,
		Digest:      digest,
		SizeBytes:   size,
		ContentType: contentType,
		Content:     f,
	})
}

// detectContentType prefers the extension and falls back to sniffing.
func detectContentType(f io.ReadSeeker, path string) (string, error) {
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		return byExt, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	if n == 0 {
		return dedup.DefaultContentType, nil
	}
	return http.DetectContentType(head[:n]), nil
}

func newListCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List files, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, err := flags.requirePrincipal()
			if err != nil {
				return err
			}
			return withService(cmd.Context(), cfg, func(svc dedup.Service) error {
				refs, err := svc.List(cmd.Context(), principal)
				if err != nil {
					return err
				}
				if flags.structured() {
					return writeStructured(refs)
				}
				return writeRefList(refs)
			})
		},
	}
}

func newRemoveCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>...",
		Short: "Remove files; content is purged when nobody references it",
		Args:  requireRefIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, err := flags.requirePrincipal()
			if err != nil {
				return err
			}
			return withService(cmd.Context(), cfg, func(svc dedup.Service) error {
				removed := make([]models.Reference, 0, len(args))
				for _, id := range args {
					ref, err := svc.Remove(cmd.Context(), principal, id)
					if err != nil {
						return err
					}
					removed = append(removed, ref)
				}
				if flags.structured() {
					return writeStructured(removed)
				}
				for _, ref := range removed {
					state := "released"
					if ref.RefCount == 0 {
						state = "purged"
					}
					if err := writePlain("removed %s %s (%s)\n", ref.ID, ref.Filename, state); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newGetCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Write a file's content to stdout or a path",
		Args:  requireOneRefID,
		RunE: func(cmd *cobra.Command, args []string) error {
			principal, err := flags.requirePrincipal()
			if err != nil {
				return err
			}
			return withService(cmd.Context(), cfg, func(svc dedup.Service) error {
				content, err := svc.Open(cmd.Context(), principal, args[0])
				if err != nil {
					return err
				}
				defer content.Reader.Close()

				if outPath == "" {
					_, err := io.Copy(stdout, content.Reader)
					return err
				}
				return writeContentFile(outPath, content)
			})
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write to this path instead of stdout")
	return cmd
}

func writeContentFile(path string, content *dedup.Content) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".vinno-get-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, content.Reader)
	if err != nil {
		_ = tmp.Close()
		return err
	}
	if n != content.SizeBytes {
		_ = tmp.Close()
		return fmt.Errorf("short read: got %d of %d bytes", n, content.SizeBytes)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
