package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"fileshare/internal/api"
	"fileshare/internal/format"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeStructured(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeFileList(w io.Writer, files []api.FileResponse) error {
	for _, file := range files {
		if _, err := fmt.Fprintln(w, formatFileLine(file)); err != nil {
			return err
		}
	}
	return nil
}

func writeFileDetail(w io.Writer, file api.FileResponse) error {
	lines := []string{
		fmt.Sprintf("public_name: %s", file.PublicName),
		fmt.Sprintf("original_name: %s", file.OriginalName),
		fmt.Sprintf("content_type: %s", file.ContentType),
		fmt.Sprintf("size: %s (%d bytes)", humanize.IBytes(uint64(file.SizeBytes)), file.SizeBytes),
		fmt.Sprintf("created_at: %s", formatTime(file.CreatedAt)),
		fmt.Sprintf("location: %s", file.Location),
	}
	if file.Digest != "" {
		lines = append(lines, fmt.Sprintf("digest: %s", file.Digest))
	}
	_, err := fmt.Fprintf(w, "%s\n", strings.Join(lines, "\n"))
	return err
}

func formatFileLine(file api.FileResponse) string {
	return fmt.Sprintf("%-32s %10s  %-12s  %s",
		file.PublicName, humanize.IBytes(uint64(file.SizeBytes)), file.ContentType, formatTime(file.CreatedAt))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
