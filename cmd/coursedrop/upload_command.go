package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"coursedrop/internal/server"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var serverURL string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file to a running coursedrop server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			base := strings.TrimSpace(serverURL)
			if base == "" {
				base = "http://" + cfg.Paths.APIBind
			}

			reqCtx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			resp, err := postUpload(reqCtx, base, args[0])
			if err != nil {
				return err
			}

			if ctx.JSONMode() {
				if err := writeJSON(cmd, resp); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			}
			if !resp.Success {
				return errors.New("upload rejected")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "Server base URL (defaults to http://<paths.api_bind>)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Request timeout")
	return cmd
}

// postUpload streams path as the "file" part of a multipart POST to
// <base>/api/upload and decodes the JSON reply.
func postUpload(ctx context.Context, base, path string) (server.UploadResponse, error) {
	var out server.UploadResponse

	file, err := os.Open(path)
	if err != nil {
		return out, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	endpoint := strings.TrimRight(base, "/") + "/api/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return out, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	go func() {
		part, err := writer.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = writer.Close()
		}
		pw.CloseWithError(err)
	}()

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("upload to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return out, fmt.Errorf("decode upload response (status %d): %w", resp.StatusCode, err)
	}
	return out, nil
}
