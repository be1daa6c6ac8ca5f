package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live terminal dashboard of the token pool",
	RunE: func(_ *cobra.Command, _ []string) error {
		m := newWatchModel(endpointFlag)
		p := tea.NewProgram(m, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// pollInterval is how often watch re-queries the governor's status.
const pollInterval = 1 * time.Second
