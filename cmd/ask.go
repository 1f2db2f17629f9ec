package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   `ask "<question>"`,
		Short: "Prints the retrieved context for a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			bundle := a.Retriever.Retrieve(cmd.Context(), strings.Join(args, " "))
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(bundle)
			}
			if bundle.Empty() {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "No relevant content found.")
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), bundle.Context())
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full retrieval bundle as JSON")
	return cmd
}
