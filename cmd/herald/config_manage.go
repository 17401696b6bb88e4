package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/herald/internal/config"
	"github.com/mattjoyce/herald/internal/doctor"
)

func printConfigLockHelp() {
	fmt.Println("Usage: herald config lock [--config PATH] [-v|--verbose] [--dry-run]")
	fmt.Println("Authorize current configuration state by regenerating integrity hashes.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: herald config check [--config PATH] [--strict] [--json]")
	fmt.Println("Validate configuration syntax, policy, and integrity.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  Valid")
	fmt.Println("  1  Errors found")
	fmt.Println("  2  Warnings found (with --strict)")
}

func printConfigShowHelp() {
	fmt.Println("Usage: herald config show [--config PATH] [--json]")
	fmt.Println("Show the full resolved configuration. Secrets are redacted.")
}

// resolveConfigTarget turns the --config flag (file, directory, or empty for
// discovery) into the config directory and the config file basename inside it.
func resolveConfigTarget(configPath string) (dir, file string, err error) {
	if configPath == "" {
		configPath, err = config.DiscoverConfig()
		if err != nil {
			return "", "", err
		}
	}

	info, err := os.Stat(configPath)
	if err != nil {
		return "", "", fmt.Errorf("config path not found: %s", configPath)
	}
	if info.IsDir() {
		return configPath, "config.yaml", nil
	}
	return filepath.Dir(configPath), filepath.Base(configPath), nil
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file or directory")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Compute hashes without writing .checksums")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	isVerbose := verbose || verboseShort

	dir, file, err := resolveConfigTarget(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve config: %v\n", err)
		return 1
	}

	report, err := config.GenerateChecksumsWithReport(dir, []string{file}, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config in %s: %v\n", dir, err)
		return 1
	}

	if isVerbose {
		fmt.Printf("Processing directory: %s\n", dir)
		for _, f := range report.Files {
			if f.Exists {
				fmt.Printf("  HASH %s: %s\n", f.Filename, f.Hash)
				continue
			}
			fmt.Printf("  SKIP %s: not found\n", f.Filename)
		}
		if dryRun {
			fmt.Printf("  DRY-RUN .checksums: %s (not written)\n", report.ChecksumPath)
		} else {
			fmt.Printf("  WROTE .checksums: %s\n", report.ChecksumPath)
		}
	}

	if dryRun {
		fmt.Printf("Dry run completed for %s (no files written)\n", dir)
	} else {
		fmt.Printf("Successfully locked configuration in %s\n", dir)
	}
	return 0
}

func runConfigCheck(args []string) int {
	var configPath string
	var strict, jsonOut bool

	fs := flag.NewFlagSet("check", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration file or directory")
	fs.BoolVar(&strict, "strict", false, "Treat warnings as errors")
	fs.BoolVar(&jsonOut, "json", false, "Output in JSON")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if configPath == "" {
		discovered, err := config.DiscoverConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		configPath = discovered
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	if jsonOut {
		out, err := result.JSON()
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		printValidationSummary(result)
	}

	if !result.Valid {
		return 1
	}
	if strict && len(result.Warnings) > 0 {
		return 2
	}
	return 0
}

func printValidationSummary(result *doctor.Result) {
	if result == nil {
		return
	}
	if !result.Valid {
		fmt.Printf("Validation: failed (%d error(s), %d warning(s))\n", len(result.Errors), len(result.Warnings))
		printIssues("ERROR", result.Errors)
		printIssues("WARN ", result.Warnings)
		return
	}

	if len(result.Warnings) == 0 {
		fmt.Println("Validation: ✓ All checks passed")
		return
	}
	fmt.Printf("Validation: ✓ passed with %d warning(s)\n", len(result.Warnings))
	printIssues("WARN ", result.Warnings)
}

func printIssues(label string, issues []doctor.Issue) {
	for _, issue := range issues {
		if issue.Field != "" {
			fmt.Printf("  %s [%s] %s: %s\n", label, issue.Category, issue.Field, issue.Message)
			continue
		}
		fmt.Printf("  %s [%s] %s\n", label, issue.Category, issue.Message)
	}
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if *configPath == "" {
		discovered, err := config.DiscoverConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		*configPath = discovered
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	redactConfigSecrets(cfg)

	if *jsonOut {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Render error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Render error: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}

const redactedValue = "[REDACTED]"

// redactConfigSecrets blanks secret material before rendering. The signing
// secret and bearer tokens must never reach stdout.
func redactConfigSecrets(cfg *config.Config) {
	if cfg.Gateway.SigningSecret != "" {
		cfg.Gateway.SigningSecret = redactedValue
	}
	if cfg.API.Auth.APIKey != "" {
		cfg.API.Auth.APIKey = redactedValue
	}
	for i := range cfg.API.Auth.Tokens {
		if cfg.API.Auth.Tokens[i].Token != "" {
			cfg.API.Auth.Tokens[i].Token = redactedValue
		}
	}
}
