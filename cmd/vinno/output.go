package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	units "github.com/docker/go-units"

	"vinnodrive/internal/format"
	"vinnodrive/internal/models"
)

var (
	outputFormatter format.Formatter = format.JSONFormatter{}
	stdout          io.Writer        = os.Stdout
)

func configureOutput(flags *globalFlags) error {
	name := strings.TrimSpace(flags.Output)
	if name == "" {
		outputFormatter = format.JSONFormatter{}
		return nil
	}
	formatter, err := format.ForName(name)
	if err != nil {
		return err
	}
	outputFormatter = formatter
	return nil
}

func writeStructured(payload any) error {
	return outputFormatter.Write(stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(stdout, format, args...)
	return err
}

func writeRefList(refs []models.Reference) error {
	if len(refs) == 0 {
		return writePlain("no files\n")
	}
	for _, ref := range refs {
		if err := writePlain("%s\n", formatRefLine(ref)); err != nil {
			return err
		}
	}
	return nil
}

func writeRefDetail(ref models.Reference) error {
	lines := []string{
		fmt.Sprintf("id: %s", ref.ID),
		fmt.Sprintf("filename: %s", ref.Filename),
		fmt.Sprintf("size: %s", formatSize(ref.SizeBytes)),
		fmt.Sprintf("content_type: %s", ref.ContentType),
		fmt.Sprintf("hash: %s", ref.Digest),
		fmt.Sprintf("uploaded: %s", formatTime(ref.CreatedAt)),
		fmt.Sprintf("ref_count: %d", ref.RefCount),
	}
	if ref.Locator != "" {
		lines = append(lines, fmt.Sprintf("download_url: %s", ref.Locator))
	}
	if ref.IsDuplicate {
		lines = append(lines, "duplicate: true")
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatRefLine(ref models.Reference) string {
	marker := "○"
	switch {
	case ref.IsDuplicate:
		marker = "◐"
	case ref.IsShared:
		marker = "●"
	}
	return fmt.Sprintf("%s %s %9s  %s  %s", marker, ref.ID, formatSize(ref.SizeBytes), formatTime(ref.CreatedAt), ref.Filename)
}

func formatSize(size int64) string {
	return units.BytesSize(float64(size))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
