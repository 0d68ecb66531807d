package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/occidens/org-async/internal/api"
	"github.com/occidens/org-async/internal/config"
	"github.com/occidens/org-async/internal/doctor"
	"github.com/occidens/org-async/internal/job"
	"github.com/occidens/org-async/internal/journal"
	"github.com/occidens/org-async/internal/launch"
	"github.com/occidens/org-async/internal/lock"
	"github.com/occidens/org-async/internal/log"
	"github.com/occidens/org-async/internal/monitor"
	"github.com/occidens/org-async/internal/sexp"
	"github.com/occidens/org-async/internal/stack"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "run":
		os.Exit(runRun(args))
	case "serve":
		os.Exit(runServe(args))
	case "doctor":
		os.Exit(runDoctor(args))
	case "version":
		fmt.Printf("org-async version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`org-async - run deferred work in subordinate worker processes

Usage:
  org-async <command> [flags]

Commands:
  run       Launch one job, wait for completion, print its result
  serve     Run the coordinator daemon with the HTTP API
  doctor    Validate configuration and host environment
  version   Print version

Run flags:
  --config FILE      Configuration file (defaults apply when omitted)
  --origin NAME      Origin identifier recorded on the job
  --work FORM        Work form to evaluate (or --work-file)
  --work-file FILE   Read the work form from a file
  --setup FORM       Setup form run before the work (or --setup-file)
  --setup-file FILE  Read the setup form from a file
  --encoding NAME    Text encoding for the artifact (default utf-8)
  --debug            Retain artifact and worker output for inspection
  --json             Print the decoded result as JSON
`)
}

// loadConfig loads the config file when given, else returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Defaults(), nil
	}
	return config.Load(path)
}

// readForm resolves an inline form or a form file into source text.
func readForm(inline, file string) (job.Form, error) {
	if inline != "" && file != "" {
		return "", fmt.Errorf("provide either an inline form or a file, not both")
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read form file: %w", err)
		}
		return job.Form(data), nil
	}
	return job.Form(inline), nil
}

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "configuration file")
	origin := fs.String("origin", "cli", "origin identifier")
	work := fs.String("work", "", "work form")
	workFile := fs.String("work-file", "", "file containing the work form")
	setup := fs.String("setup", "", "setup form")
	setupFile := fs.String("setup-file", "", "file containing the setup form")
	encoding := fs.String("encoding", "", "artifact text encoding")
	debug := fs.Bool("debug", false, "retain artifact and worker output")
	asJSON := fs.Bool("json", false, "print result as JSON")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log.Setup(cfg.Service.LogLevel)

	workForm, err := readForm(*work, *workFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	setupForm, err := readForm(*setup, *setupFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	j := job.New(*origin, workForm)
	j.Setup = setupForm
	if *encoding != "" {
		j.Encoding = *encoding
	}

	jr, err := journal.Open(context.Background(), cfg.Journal.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer jr.Close()

	st := stack.New()
	mon := monitor.New(*debug || cfg.Worker.Debug, jr, st)
	launcher := launch.New(launch.Config{
		HostExec:    cfg.Worker.HostExec,
		InitFile:    cfg.Worker.InitFile,
		Debug:       *debug || cfg.Worker.Debug,
		ArtifactDir: cfg.Worker.ArtifactDir,
	}, mon, st)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := launcher.Start(ctx, j); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := j.Wait(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Interrupted: %v\n", err)
		return 1
	}

	if j.Status != job.StatusExited || j.Err != nil {
		fmt.Fprintf(os.Stderr, "Job %s finished with status %s", j.ID, j.Status)
		if j.Err != nil {
			fmt.Fprintf(os.Stderr, ": %v", j.Err)
		}
		fmt.Fprintln(os.Stderr)
		return 1
	}

	if *asJSON {
		out, err := json.Marshal(j.Result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println(string(out))
		return 0
	}
	fmt.Println(sexp.Print(j.Result))
	return 0
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "configuration file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("serve")

	if !cfg.API.Enabled {
		fmt.Fprintln(os.Stderr, "Error: api.enabled must be true for serve mode")
		return 1
	}

	// One coordinator per journal.
	pidLock, err := lock.Acquire(cfg.Journal.Path + ".lock")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer pidLock.Release()

	jr, err := journal.Open(context.Background(), cfg.Journal.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer jr.Close()

	st := stack.New()
	mon := monitor.New(cfg.Worker.Debug, jr, st)
	launcher := launch.New(launch.Config{
		HostExec:    cfg.Worker.HostExec,
		InitFile:    cfg.Worker.InitFile,
		Debug:       cfg.Worker.Debug,
		ArtifactDir: cfg.Worker.ArtifactDir,
	}, mon, st)

	server := api.New(api.Config{
		Listen: cfg.API.Listen,
		APIKey: cfg.API.APIKey,
	}, launcher, st, jr, log.WithComponent("api"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("coordinator starting", "host_exec", cfg.Worker.HostExec, "listen", cfg.API.Listen)
	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", "", "configuration file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))

	if !result.Valid {
		return 1
	}
	return 0
}
