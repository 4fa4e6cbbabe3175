package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/crashworks/tombstone/internal/artifact"
	"github.com/crashworks/tombstone/internal/config"
	"github.com/crashworks/tombstone/internal/util"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A78BFA"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))

	kindStyles = map[artifact.Kind]lipgloss.Style{
		artifact.KindManaged:          lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171")),
		artifact.KindNative:           lipgloss.NewStyle().Foreground(lipgloss.Color("#FB923C")),
		artifact.KindANR:              lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		artifact.KindTrace:            lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA")),
		artifact.KindPlaceholderClean: lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
		artifact.KindPlaceholderDirty: lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
	}
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List the artifacts in the store directory",
	Long: `List every artifact in the store directory in creation order, with
its kind, creation time, size and the app version and process name embedded
in the file name. Files the store did not create are ignored.`,
	RunE: runInspect,
}

var (
	inspectKind         string
	inspectPlaceholders bool
)

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().StringVarP(&inspectKind, "kind", "k", "", "only show one kind: managed, native, anr, trace")
	inspectCmd.Flags().BoolVar(&inspectPlaceholders, "placeholders", false, "include placeholder files")
}

// row is one parsed directory entry for display.
type row struct {
	Name string
	Info artifact.Info
	Size int64
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dir := cfg.Store.ResolveStoreDir()

	var only *artifact.Kind
	if inspectKind != "" {
		kind, err := kindFromFlag(inspectKind)
		if err != nil {
			return err
		}
		only = &kind
	}

	rows, err := artifactRows(dir, only, inspectPlaceholders)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}

	fmt.Println(titleStyle.Render("Artifact store: " + dir))
	if len(rows) == 0 {
		fmt.Println(mutedStyle.Render("no artifacts"))
		return nil
	}

	fmt.Printf("%-19s  %-17s  %10s  %-12s  %s\n", "CREATED", "KIND", "SIZE", "VERSION", "PROCESS")
	for _, r := range rows {
		style, ok := kindStyles[r.Info.Kind]
		if !ok {
			style = mutedStyle
		}
		fmt.Printf("%-19s  %s  %10d  %-12s  %s\n",
			r.Info.Created().Format("2006-01-02 15:04:05"),
			style.Render(fmt.Sprintf("%-17s", r.Info.Kind.String())),
			r.Size,
			util.TruncateString(r.Info.AppVersion, 12),
			util.TruncateANSI(r.Info.ProcessName, 40))
	}
	fmt.Println(mutedStyle.Render(fmt.Sprintf("%d file(s)", len(rows))))
	return nil
}

// artifactRows parses and filters the directory listing, oldest first.
func artifactRows(dir string, only *artifact.Kind, placeholders bool) ([]row, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var rows []row
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, ok := artifact.Parse(entry.Name())
		if !ok {
			continue
		}
		if info.Kind.IsPlaceholder() && !placeholders {
			continue
		}
		if only != nil && info.Kind != *only {
			continue
		}

		var size int64
		if fi, err := os.Stat(filepath.Join(dir, entry.Name())); err == nil {
			size = fi.Size()
		}
		rows = append(rows, row{Name: entry.Name(), Info: info, Size: size})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows, nil
}

func kindFromFlag(name string) (artifact.Kind, error) {
	switch name {
	case "managed":
		return artifact.KindManaged, nil
	case "native":
		return artifact.KindNative, nil
	case "anr":
		return artifact.KindANR, nil
	case "trace":
		return artifact.KindTrace, nil
	default:
		return 0, fmt.Errorf("unknown kind %q (want managed, native, anr or trace)", name)
	}
}
