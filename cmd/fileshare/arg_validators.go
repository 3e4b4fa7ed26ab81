package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != count {
			return errors.New(message)
		}
		return nil
	}
}

// requirePublicName accepts exactly one stored file name. Stored names
// never contain path separators, so those fail before any request.
func requirePublicName(_ *cobra.Command, args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return errors.New("name is required")
	}
	if strings.ContainsAny(args[0], `/\`) {
		return fmt.Errorf("invalid name %q: stored names contain no path separators", args[0])
	}
	return nil
}
