// internal/commands/show_config.go
package detrun

import (
	"github.com/k0kubun/pp"
	"github.com/mwiater/detrun/internal/appconfig"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var showConfigRaw bool

// showConfigCmd implements the 'show config' command, which displays the current configuration settings.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the config file is loaded properly and overridden by flags and DETRUN_* environment variables accordingly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg != nil && cfg.JSONMode {
			return writeJSON(cmd.OutOrStdout(), cfg)
		}
		if showConfigRaw {
			_, err := pp.Fprintln(cmd.OutOrStdout(), config())
			return err
		}
		fallback := appconfig.Config{
			Debug:    viper.GetBool("debug"),
			JSONMode: viper.GetBool("jsonMode"),
			LogFile:  viper.GetString("logFile"),
		}
		appconfig.ShowConfig(cmd.OutOrStdout(), viper.ConfigFileUsed(), cfg, fallback)
		return nil
	},
}

func init() {
	showConfigCmd.Flags().BoolVar(&showConfigRaw, "raw", false, "dump the decoded configuration struct")
	showCmd.AddCommand(showConfigCmd)
}
