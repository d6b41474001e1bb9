package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/CosmoTheDev/codesense/internal/ai"
	"github.com/CosmoTheDev/codesense/internal/config"
	"github.com/CosmoTheDev/codesense/internal/database"
	"github.com/CosmoTheDev/codesense/internal/knowledge"
	"github.com/CosmoTheDev/codesense/internal/notify"
	"github.com/CosmoTheDev/codesense/internal/scanner"
)

var (
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#22C55E"))
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F59E0B"))
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Verify the model, knowledge index, database and host load",
	Long: `Checks that the database can be reached, the inference backend answers,
the knowledge index loads and notification channels are configured.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	allOK := true

	fmt.Println("=== codesense doctor ===")
	fmt.Println()

	fmt.Print("Database ................. ")
	db, err := database.New(cfg.Database)
	if err != nil {
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	} else {
		if err := db.Ping(ctx); err != nil {
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
		} else {
			fmt.Printf("OK (%s)\n", db.Driver())
		}
		db.Close()
	}

	fmt.Print("Inference backend ........ ")
	provider, err := ai.New(cfg.AI)
	switch {
	case err != nil:
		fmt.Printf("FAIL (%s)\n", err)
		allOK = false
	case !provider.IsAvailable(ctx):
		fmt.Printf("FAIL (%s / %s not reachable)\n", provider.Name(), cfg.AI.Model)
		allOK = false
	default:
		fmt.Printf("OK (%s / %s)\n", provider.Name(), cfg.AI.Model)
	}

	fmt.Print("Knowledge index .......... ")
	if cfg.Knowledge.Path == "" {
		fmt.Println("WARN (knowledge.path not set; prompts carry no reference material)")
	} else {
		kb, err := knowledge.Open(cfg.Knowledge.Path, cfg.Knowledge.TopK, cfg.Knowledge.CacheSize)
		switch {
		case errors.Is(err, knowledge.ErrIndexMissing):
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
		case err != nil:
			fmt.Printf("FAIL (%s)\n", err)
			allOK = false
		default:
			fmt.Printf("OK (%d entries)\n", kb.Len())
		}
	}

	fmt.Print("Host load ................ ")
	cpuPct, memPct, err := scanner.HostSampler{Interval: 200 * time.Millisecond}.Sample(ctx)
	if err != nil {
		fmt.Printf("WARN (%s)\n", err)
	} else {
		note := ""
		if cfg.Scan.LoadThreshold > 0 && (cpuPct > cfg.Scan.LoadThreshold || memPct > cfg.Scan.LoadThreshold) {
			note = ", scans will be throttled"
		}
		fmt.Printf("cpu %.0f%% mem %.0f%%%s\n", cpuPct, memPct, note)
	}

	fmt.Print("Notifications ............ ")
	d := notify.NewDispatcher(cfg.Notify)
	if d.IsAnyConfigured() {
		fmt.Printf("OK (%v)\n", d.Channels())
	} else {
		fmt.Println("none configured")
	}
	d.Close()

	fmt.Println()
	if allOK {
		fmt.Println(successStyle.Render("All checks passed. codesense is ready."))
		return nil
	}
	fmt.Println(warnStyle.Render("Some checks failed. Review the config with 'codesense config show'."))
	return errors.New("doctor found problems")
}
