package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/CosmoTheDev/codesense/internal/config"
	"github.com/CosmoTheDev/codesense/internal/profiles"
	"github.com/CosmoTheDev/codesense/internal/scanner"
	"github.com/CosmoTheDev/codesense/internal/tui"
	"github.com/CosmoTheDev/codesense/models"
)

var (
	scanPath      string
	scanRepoURL   string
	scanBranch    string
	scanName      string
	scanBy        string
	scanOutputFmt string
	scanTUI       bool
	scanProfile   string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a directory or repository for vulnerabilities",
	Long: `Walks every supported source file, asks the configured model for
vulnerabilities chunk by chunk and stores the deduplicated findings.

Examples:
  codesense scan --path ./myapp
  codesense scan --repo https://github.com/example/myapp --branch develop
  codesense scan --path ./myapp --output json
  codesense scan --path ./myapp --tui
  codesense scan --path ./native --profile memory-safety`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanPath, "path", "", "Local directory to scan")
	scanCmd.Flags().StringVar(&scanRepoURL, "repo", "", "Repository URL to clone and scan")
	scanCmd.Flags().StringVar(&scanBranch, "branch", "", "Branch to scan (default: repo default branch)")
	scanCmd.Flags().StringVar(&scanName, "name", "", "Scan name (default: directory or repository name)")
	scanCmd.Flags().StringVar(&scanBy, "by", "cli", "Who triggered the scan")
	scanCmd.Flags().StringVar(&scanOutputFmt, "output", "table", "Output format: table|json|yaml")
	scanCmd.Flags().BoolVar(&scanTUI, "tui", false, "Show a live progress view while scanning")
	scanCmd.Flags().StringVar(&scanProfile, "profile", "", "Review profile to apply (default: scan.profile from config)")
	scanCmd.MarkFlagsOneRequired("path", "repo")
	scanCmd.MarkFlagsMutuallyExclusive("path", "repo")
}

// scanReport is the machine-readable scan result.
type scanReport struct {
	Scan       models.Scan                  `json:"scan"        yaml:"scan"`
	Severity   map[models.SeverityLevel]int `json:"severity"    yaml:"severity"`
	Findings   []models.Finding             `json:"findings"    yaml:"findings"`
	FailedFile []string                     `json:"failed_files" yaml:"failed_files"`
}

func runScan(cmd *cobra.Command, args []string) error {
	switch scanOutputFmt {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("invalid --output %q (valid: table, json, yaml)", scanOutputFmt)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	svc, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	profileName := scanProfile
	if profileName == "" {
		profileName = cfg.Scan.Profile
	}
	profile, err := profiles.Load(profileName, cfg.Scan.ProfilesDir)
	if err != nil {
		return err
	}

	src := models.Source{Path: scanPath, CloneURL: scanRepoURL, Branch: scanBranch}
	co, err := svc.cloner.Prepare(ctx, src)
	if err != nil {
		return fmt.Errorf("preparing %s: %w", src.Label(), err)
	}
	defer svc.cloner.Cleanup(co)
	if src.Remote() {
		slog.Info("Repository cloned", "path", co.LocalPath, "commit", co.Commit, "branch", co.Branch)
	}

	name := scanName
	if name == "" {
		name = co.Name
	}
	req := scanner.Request{Name: name, Root: co.LocalPath, TriggeredBy: scanBy, Profile: profile}

	var res *scanner.Result
	if scanTUI {
		res, err = runWithProgress(ctx, svc, req)
	} else {
		if scanOutputFmt == "table" {
			fmt.Printf("Scanning %s with %s\n\n", src.Label(), svc.provider.Name())
		}
		res, err = svc.runner.Run(ctx, req)
	}
	if err != nil {
		if res == nil || errors.Is(err, scanner.ErrInferenceUnavailable) {
			return fmt.Errorf("scan failed: %w", err)
		}
		slog.Error("Scan finished with errors", "scan_id", res.Scan.ID, "error", err)
	}

	// The report is still printed after Ctrl-C.
	counts, err := svc.store.SeverityCounts(context.WithoutCancel(ctx), res.Scan.ID)
	if err != nil {
		return err
	}
	if err := printScanReport(scanReport{
		Scan:       res.Scan,
		Severity:   counts,
		Findings:   res.Findings,
		FailedFile: res.FailedFiles,
	}, scanOutputFmt); err != nil {
		return err
	}
	if res.Scan.Status == models.ScanFailed {
		return fmt.Errorf("scan %s failed: %s", res.Scan.ID, res.Scan.ErrorMsg)
	}
	return nil
}

// runWithProgress runs the scan while a bubbletea view follows the
// tracker. Quitting the view cancels the scan.
func runWithProgress(ctx context.Context, svc *service, req scanner.Request) (*scanner.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates := tui.Watch(svc.runner.Tracker())
	p := tea.NewProgram(tui.NewProgressModel(models.Scan{Name: req.Name}, updates, cancel))

	var (
		res    *scanner.Result
		runErr error
		done   = make(chan struct{})
	)
	go func() {
		defer close(done)
		res, runErr = svc.runner.Run(ctx, req)
		p.Quit()
	}()
	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return res, fmt.Errorf("running progress view: %w", err)
	}
	<-done
	return res, runErr
}

func printScanReport(r scanReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	default:
		fmt.Print(tui.RenderSummary(r.Scan, r.Severity, r.Findings))
		if len(r.FailedFile) > 0 {
			fmt.Printf("\nFiles that could not be scanned: %s\n", strings.Join(r.FailedFile, ", "))
		}
		fmt.Println("\nFindings saved to database. Run 'codesense ui' to review.")
		return nil
	}
}
