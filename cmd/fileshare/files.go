package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"fileshare/internal/api"
	"fileshare/internal/config"
)

func newUploadCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		name      string
		mediaType string
	)

	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a file",
		Args:  requireExactlyArgs(1, "path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()

			if strings.TrimSpace(mediaType) == "" {
				mediaType = guessMediaType(path)
			}
			req := api.UploadRequest{
				Filename:  chooseFirst(name, filepath.Base(path)),
				MediaType: mediaType,
				Content:   file,
			}
			return withClient(cfg, func(client *api.Client) error {
				stored, err := client.Upload(cmd.Context(), req)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeStructured(stored)
				}
				return writePlain("%s\n", stored.Location)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "filename to store instead of the local base name")
	cmd.Flags().StringVar(&mediaType, "type", "", "declared media type (detected when empty)")
	return cmd
}

func newDownloadCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		outPath string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "download <name>",
		Short: "Download a stored file",
		Args:  requirePublicName,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := chooseFirst(outPath, filepath.Base(args[0]))
			toStdout := target == "-"
			if !toStdout && !force {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("output file exists (use --force to overwrite)")
				}
			}

			return withClient(cfg, func(client *api.Client) error {
				var (
					result api.DownloadResult
					err    error
				)
				if toStdout {
					result, err = client.Download(cmd.Context(), args[0], os.Stdout)
				} else {
					result, err = downloadToFile(cmd.Context(), client, args[0], target)
				}
				if err != nil {
					return err
				}
				if toStdout {
					return nil
				}
				if *jsonOutput {
					return writeStructured(map[string]any{
						"path":         target,
						"content_type": result.ContentType,
						"size_bytes":   result.SizeBytes,
						"etag":         result.ETag,
					})
				}
				return writePlain("%s\n", target)
			})
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output path (- for stdout)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite output path if it exists")
	return cmd
}

// downloadToFile writes into a temp file beside target and renames it
// into place only after the whole body arrived. A failed download leaves
// any existing target untouched.
func downloadToFile(ctx context.Context, client *api.Client, publicName, target string) (api.DownloadResult, error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".fileshare-download-*")
	if err != nil {
		return api.DownloadResult{}, err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	result, err := client.Download(ctx, publicName, tmp)
	if err != nil {
		return result, err
	}
	if err := tmp.Close(); err != nil {
		return result, err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return result, err
	}
	committed = true
	return result, nil
}

func newListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		contentType string
		prefix      string
		limit       int
		offset      int
	)

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List stored files",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			setIfNotEmpty(query, "content_type", contentType)
			setIfNotEmpty(query, "prefix", prefix)
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				query.Set("offset", strconv.Itoa(offset))
			}

			return withClient(cfg, func(client *api.Client) error {
				files, err := client.ListFiles(cmd.Context(), query)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeStructured(files)
				}
				return writeFileList(os.Stdout, files)
			})
		},
	}

	cmd.Flags().StringVar(&contentType, "type", "", "filter by content type")
	cmd.Flags().StringVar(&prefix, "prefix", "", "filter by public name prefix")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of files")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of files to skip")
	return cmd
}

func newShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show metadata for one stored file",
		Args:  requirePublicName,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				file, err := client.GetFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeStructured(file)
				}
				return writeFileDetail(os.Stdout, file)
			})
		},
	}
}

func newRemoveCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var missingOK bool

	cmd := &cobra.Command{
		Use:   "rm <name>",
		Short: "Remove one stored file",
		Args:  requirePublicName,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.DeleteFile(cmd.Context(), args[0])
				if missingOK && errors.Is(err, api.ErrNotFound) {
					resp, err = api.DeleteResponse{PublicName: args[0]}, nil
				}
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeStructured(resp)
				}
				return writePlain("%s\n", resp.PublicName)
			})
		},
	}

	cmd.Flags().BoolVar(&missingOK, "missing-ok", false, "succeed when the name does not exist")
	return cmd
}

func newClearCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every stored file and blob",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear storage without --yes")
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.ClearAll(cmd.Context(), true)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeStructured(resp)
				}
				return writePlain("cleared\n")
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm removing all files")
	return cmd
}

// guessMediaType picks a declared type from the extension, falling back to
// content sniffing.
func guessMediaType(path string) string {
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
		return byExt
	}
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return ""
	}
	return detected.String()
}

func chooseFirst(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func setIfNotEmpty(values url.Values, key, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	values.Set(key, value)
}
