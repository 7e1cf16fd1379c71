// Package configutil resolves settings that can arrive either as a
// command-line flag or through viper's environment/config binding. An
// explicitly set flag wins over the bound value.
package configutil

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func FlagOrViperString(cmd *cobra.Command, flagName, viperKey string) string {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		if v, err := cmd.Flags().GetString(flagName); err == nil {
			return v
		}
	}
	return viper.GetString(viperKey)
}

func FlagOrViperInt(cmd *cobra.Command, flagName, viperKey string) int {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		if v, err := cmd.Flags().GetInt(flagName); err == nil {
			return v
		}
	}
	return viper.GetInt(viperKey)
}

func FlagOrViperBool(cmd *cobra.Command, flagName, viperKey string) bool {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		if v, err := cmd.Flags().GetBool(flagName); err == nil {
			return v
		}
	}
	return viper.GetBool(viperKey)
}

func FlagOrViperDuration(cmd *cobra.Command, flagName, viperKey string) time.Duration {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		if v, err := cmd.Flags().GetDuration(flagName); err == nil {
			return v
		}
	}
	return viper.GetDuration(viperKey)
}
