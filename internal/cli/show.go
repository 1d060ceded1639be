package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ledwatcher/internal/app"
)

var (
	showMetric string
	showLimit  int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent metric samples",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Kind:  showMetric,
			Limit: showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showMetric, "metric", "marketPrice", "Metric kind to display")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of samples to display")
}
