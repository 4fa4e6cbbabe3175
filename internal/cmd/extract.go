package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/crashworks/tombstone/internal/anr"
)

var extractCmd = &cobra.Command{
	Use:   "extract <trace-file>",
	Short: "Extract one process's block from a shared hang-trace file",
	Long: `Scan a shared hang-trace file and print the single block that matches
the given pid, process name and timestamp. The file holds interleaved
blocks for every process on the device; a block matches when its pid and
Cmd line agree and its timestamp is within the tolerance window.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

var (
	extractPID     int
	extractProcess string
	extractAt      string
	extractWindow  int
)

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().IntVar(&extractPID, "pid", 0, "process id the block must carry")
	extractCmd.Flags().StringVar(&extractProcess, "process", "", "process name the Cmd line must carry")
	extractCmd.Flags().StringVar(&extractAt, "at", "", "event time as 2006-01-02 15:04:05 (default: now)")
	extractCmd.Flags().IntVar(&extractWindow, "window", 15, "timestamp tolerance in seconds")
	_ = extractCmd.MarkFlagRequired("pid")
	_ = extractCmd.MarkFlagRequired("process")
}

func runExtract(cmd *cobra.Command, args []string) error {
	eventTime := time.Now()
	if extractAt != "" {
		var err error
		eventTime, err = time.ParseInLocation("2006-01-02 15:04:05", extractAt, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --at value: %w", err)
		}
	}

	segment := anr.ExtractSegment(args[0], extractPID, extractProcess, eventTime, time.Duration(extractWindow)*time.Second)
	if segment == "" {
		return fmt.Errorf("no block for pid %d (%s) within %ds of %s",
			extractPID, extractProcess, extractWindow, eventTime.Format("2006-01-02 15:04:05"))
	}

	fmt.Print(segment)
	return nil
}
