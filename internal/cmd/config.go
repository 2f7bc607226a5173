package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/signonhq/signon/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View signon configuration",
	Long: `Inspect the signon configuration stored at ~/.signon/config.yaml.

Examples:
  # Show the effective configuration (file plus environment)
  signon config view

  # Show the configuration file path
  signon config path`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Display the effective configuration",
	Long:  `Display the effective configuration after applying the config file and SIGNON_* environment variables.`,
	RunE:  runConfigView,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the configuration file path",
	RunE:  runConfigPath,
}

func runConfigView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The bootstrap token carries no yaml tag and stays out of the dump;
	// the client secret needs masking.
	cfg.ClientSecret = redact(cfg.ClientSecret)

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("rendering configuration: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}

	fmt.Println(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("(file does not exist; defaults and SIGNON_* environment variables apply)")
	}
	return nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func init() {
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}
