package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var yearsCmd = &cobra.Command{
	Use:   "years",
	Short: "List the years with incident data available",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "attribute")
		if err != nil {
			return err
		}
		defer env.Close()

		years := env.Registry.Years()
		if len(years) == 0 {
			fmt.Println("no incident data found")
			return nil
		}
		for _, y := range years {
			fmt.Println(y)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(yearsCmd)
}
