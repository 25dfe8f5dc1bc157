package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"echoclicker/internal/codec"
)

func newScriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Work with action scripts",
	}
	cmd.AddCommand(newScriptFmtCmd())
	return cmd
}

func newScriptFmtCmd() *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "fmt <file>",
		Short: "Parse a script and print it in canonical form",
		Long: "Parse a script and print it in canonical form. Lines that do not parse\n" +
			"are reported on stderr and left out of the output.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}

			actions, diags := codec.Parse(string(data))
			for _, d := range diags {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s:%d: %s: %s\n", args[0], d.Line, d.Reason, d.Text)
			}
			out := codec.Format(actions)
			if len(actions) > 0 {
				out += "\n"
			}

			if write && args[0] != "-" {
				if err := os.WriteFile(args[0], []byte(out), 0o644); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), out)
			}
			if len(diags) > 0 {
				return fmt.Errorf("%d line(s) skipped", len(diags))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write result to the file instead of stdout")
	return cmd
}
