package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/boardwalk/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented starter config",
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := configTarget()
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefaultConfig(path); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:     "set <key> <value>",
	Short:   "Set one value, keeping the rest of the file intact",
	Example: `  boardwalk config set boards.default_size 512`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configTarget()
		if err := config.SaveValue(path, args[0], args[1]); err != nil {
			return err
		}

		// refuse to leave an invalid file behind silently
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("re-reading %s: %w", path, err)
		}
		updated := config.Defaults()
		if err := v.Unmarshal(&updated); err != nil {
			return fmt.Errorf("decoding %s: %w", path, err)
		}
		if err := config.Validate(updated); err != nil {
			return fmt.Errorf("%s now holds an invalid configuration: %w", path, err)
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s = %s in %s\n", args[0], args[1], path)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file in use",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), configTarget())
		return nil
	},
}

var configForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configSetCmd, configPathCmd)

	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")
}

// configTarget is --config, else the file viper loaded, else the user config path.
func configTarget() string {
	if cfgFile != "" {
		return cfgFile
	}
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	if dir := config.DefaultConfigDir(); dir != "" {
		return filepath.Join(dir, "config.yaml")
	}
	return localConfigPath
}
