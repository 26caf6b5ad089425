package main

import (
	"EasyAPI/internal/app"
	"EasyAPI/internal/model"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Print the resolved options of every model as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		models, err := model.InitRegistry(cfg.ModelsDir)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(app.Describe(models))
	},
}
