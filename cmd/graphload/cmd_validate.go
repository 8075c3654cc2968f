package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/neurobridge-graphload/internal/domain/graphmodel"
)

func newValidateCmd() *cobra.Command {
	var modelPath, query string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Parse a model and print the schema statements a load would apply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := graphmodel.Load(modelPath, query)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "model ok: %d labels, %d relationship types, query %q\n",
				len(model.Labels()), len(model.RelationshipTypes()), model.Query.Name)
			for _, stmt := range model.Statements() {
				fmt.Fprintln(out, stmt+";")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "Model document (YAML or JSON)")
	cmd.Flags().StringVar(&query, "query", "", "Query id from the model's queries section")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}
