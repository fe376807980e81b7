package cmd

import (
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/daimatz/jvmsandbox/internal/config"
	"github.com/daimatz/jvmsandbox/pkg/sandbox"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [ops|config]",
	Short: "Print the JSON schema of the operations or of the config file",
	Example: heredoc.Doc(`
		❯ jvmsandbox schema
		❯ jvmsandbox schema config > config.schema.json`),
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"ops", "config"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 && args[0] == "config" {
			r := &jsonschema.Reflector{FieldNameTag: "mapstructure", DoNotReference: true}
			return writeJSON(os.Stdout, r.Reflect(&config.Config{}))
		}
		return writeJSON(os.Stdout, sandbox.Schemas())
	},
}
