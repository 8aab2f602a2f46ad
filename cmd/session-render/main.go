package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/entrainlab/entrain/master"
	"github.com/entrainlab/entrain/session"
)

var version = "0.1.0"

// CLI defines the command-line interface
type CLI struct {
	Version bool     `short:"v" help:"Show version information"`
	Verbose bool     `help:"Enable debug logging"`
	Presets bool     `help:"List mastering presets and exit"`
	Files   []string `arg:"" name:"sessions" help:"Session documents to render" type:"existingfile" optional:""`
}

func main() {
	cliArgs := &CLI{}
	ctx := kong.Parse(cliArgs,
		kong.Name("session-render"),
		kong.Description("Render meditation session documents to mastered WAV files"),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
	)

	if cliArgs.Version {
		fmt.Printf("session-render %s\n", version)
		os.Exit(0)
	}
	if cliArgs.Presets {
		for _, name := range master.PresetNames() {
			fmt.Println(name)
		}
		os.Exit(0)
	}
	if len(cliArgs.Files) == 0 {
		fmt.Fprintln(os.Stderr, "no session documents specified")
		ctx.PrintUsage(false)
		os.Exit(1)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cliArgs.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline := session.NewPipeline(nil)
	exitCode := 0
	for _, path := range cliArgs.Files {
		doc, err := session.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			exitCode = 1
			continue
		}
		res, err := pipeline.Run(runCtx, doc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			exitCode = 1
			continue
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(os.Stderr, "%s: warning: %v\n", path, w)
		}
		fmt.Printf("%s\n", res.ArchivalPath)
		fmt.Printf("%s\n", res.DistributionPath)
		if res.PremixPath != "" {
			fmt.Printf("%s\n", res.PremixPath)
		}
		fmt.Printf("  %.1f LUFS, %.1f dBTP, gain %+.1f dB, limiter %.1f dB\n",
			res.Mastering.OutputLUFS, res.Mastering.OutputDBTP,
			res.Mastering.GainDB, res.Mastering.MaxReductionDB)
	}
	os.Exit(exitCode)
}
