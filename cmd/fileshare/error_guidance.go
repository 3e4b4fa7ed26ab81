package main

import (
	"context"
	"errors"
	"net"

	"fileshare/internal/api"
)

// codeHints maps API error codes to the next thing a user should try.
var codeHints = map[string]string{
	"payload_too_large":      "hint: the file or total storage limit was reached; check `fileshare info -v` for limits.",
	"unsupported_media_type": "hint: pass --type with an allowed media type, or adjust uploads.allowed_media_types.",
	"not_found":              "hint: list stored names with: fileshare ls",
}

// formatCLIError renders err followed by any hints, without duplicates.
func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}
	return dedupeLines(append([]string{err.Error()}, cliHints(err)...))
}

func cliHints(err error) []string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErrorHints(apiErr)
	}

	// DeadlineExceeded satisfies net.Error, so it is matched first.
	switch {
	case errors.Is(err, errServerNotReady):
		return []string{"hint: run `fileshare srv` in the foreground to see startup errors."}
	case errors.Is(err, context.DeadlineExceeded):
		return []string{"hint: request timed out; check server health or increase FILESHARE_HTTP_TIMEOUT."}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return []string{
			"hint: ensure a fileshare server is running at FILESHARE_API_URL.",
			"hint: start local server manually with: fileshare srv",
		}
	}
	return nil
}

func apiErrorHints(apiErr *api.APIError) []string {
	var hints []string
	if hint, ok := codeHints[apiErr.Code]; ok {
		hints = append(hints, hint)
	}
	if apiErr.Code == "" {
		// No envelope code means something other than fileshare answered.
		hints = append(hints, "hint: verify FILESHARE_API_URL points to a fileshare server.")
	}
	if apiErr.Status >= 500 {
		hints = append(hints, "hint: server returned an internal error; check server logs for details.")
	}
	return hints
}

func dedupeLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := lines[:0]
	for _, line := range lines {
		if _, dup := seen[line]; dup || line == "" {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
