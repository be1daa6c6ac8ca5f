package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildgovernor/governor/app/core/protocol"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a one-shot snapshot of the token pool",
	RunE: func(_ *cobra.Command, _ []string) error {
		client, err := protocol.Dial(endpointFlag, 2*time.Second)
		if err != nil {
			return fmt.Errorf("connect to governor at %s: %w", endpointFlag, err)
		}
		defer client.Close()

		status, err := client.Status()
		if err != nil {
			return fmt.Errorf("query status: %w", err)
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		}

		printStatus(status)
		return nil
	},
}

func printStatus(s protocol.StatusResponse) {
	fmt.Printf("tokens:         %d/%d available\n", s.AvailableTokens, s.TotalTokens)
	fmt.Printf("active leases:  %d\n", s.ActiveLeases)
	fmt.Printf("expired leases: %d\n", s.ExpiredLeaseCount)
	fmt.Printf("throttle level: %s\n", s.ThrottleLevel)
	fmt.Printf("commit ratio:   %.2f (%s / %s)\n", s.CommitRatio, humanBytes(s.CommitChargeBytes), humanBytes(s.CommitLimitBytes))
	fmt.Printf("available mem:  %s\n", humanBytes(s.AvailableMemoryBytes))
	fmt.Printf("recommended parallelism: %d\n", s.RecommendedParallelism)

	if len(s.RecentLeases) > 0 {
		fmt.Println("recent leases:")
		for _, l := range s.RecentLeases {
			fmt.Printf("  %-14s %-10s %3d tok  %6.1fs\n", l.LeaseID, l.Tool, l.Tokens, l.DurationSeconds)
		}
	}
}

func humanBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output in JSON format")
}
