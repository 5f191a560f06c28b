// Package main provides the scalesep command line tool: run a decomposition
// from a file, inspect an archive and run the release tagger by hand.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/ndemo/scalesep/internal/archive"
	"github.com/ndemo/scalesep/internal/costs"
	"github.com/ndemo/scalesep/internal/release"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "fit":
		err = runFit(os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	case "release":
		err = runRelease(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: scalesep <command> [flags]

commands:
  fit      run a decomposition from a JSON input file into an archive
  inspect  summarize the levels stored in an archive
  release  run the monthly release tagger once`)
}

// fitInput mirrors the HTTP submission body.
type fitInput struct {
	Data   [][]float64 `json:"data"`
	Time   []float64   `json:"time"`
	Levels []struct {
		WindowLength int     `json:"window_length"`
		StepSize     int     `json:"step_size"`
		NumBands     int     `json:"num_bands"`
		Transform    string  `json:"transform"`
		SVDRank      float64 `json:"svd_rank"`
	} `json:"levels"`
}

func runFit(args []string) error {
	fs := flag.NewFlagSet("fit", flag.ExitOnError)
	in := fs.String("in", "", "input JSON file with data, time and levels")
	out := fs.String("out", "decomposition.ssa", "output archive path")
	workers := fs.Int("workers", runtime.NumCPU(), "window fits run in parallel")
	verbose := fs.Bool("v", false, "verbose logging")
	fs.Parse(args)

	if *in == "" {
		return fmt.Errorf("-in is required")
	}

	raw, err := os.ReadFile(*in)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	var input fitInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return fmt.Errorf("parsing input: %w", err)
	}
	if len(input.Data) == 0 || len(input.Data[0]) == 0 {
		return fmt.Errorf("input data is empty")
	}

	nSpace := len(input.Data)
	nTime := len(input.Data[0])
	data := mat.NewDense(nSpace, nTime, nil)
	for i, row := range input.Data {
		if len(row) != nTime {
			return fmt.Errorf("data row %d has %d samples, want %d", i, len(row), nTime)
		}
		for j, v := range row {
			data.Set(i, j, v)
		}
	}

	specs := make([]costs.LevelSpec, len(input.Levels))
	for i, l := range input.Levels {
		specs[i] = costs.LevelSpec{
			WindowLength: l.WindowLength,
			StepSize:     l.StepSize,
			NumBands:     l.NumBands,
			Transform:    l.Transform,
			SVDRank:      l.SVDRank,
		}
	}

	opts := costs.DefaultOptions()
	opts.Workers = *workers
	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer logger.Sync()
		opts.Logger = logger
	}

	result, err := costs.FitLevels(context.Background(), data, input.Time, specs, opts)
	if err != nil {
		return fmt.Errorf("fitting levels: %w", err)
	}
	levels, err := result.Export()
	if err != nil {
		return fmt.Errorf("exporting levels: %w", err)
	}
	if err := archive.Write(*out, levels); err != nil {
		return fmt.Errorf("writing archive: %w", err)
	}

	fmt.Printf("wrote %d levels to %s\n", len(levels), *out)
	return nil
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: scalesep inspect <archive>")
	}

	levels, err := archive.Read(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}

	for i, d := range levels {
		fmt.Printf("level %d: window=%d step=%d rank=%d space=%d time=%d",
			i, d.WindowLength, d.StepSize, d.Rank, d.NumSpace, d.NumTime)
		if d.NumBands > 0 {
			fmt.Printf(" bands=%d transform=%s", d.NumBands, d.Transform)
		}
		fmt.Println()
	}
	return nil
}

func runRelease(args []string) error {
	fs := flag.NewFlagSet("release", flag.ExitOnError)
	repo := fs.String("repo", ".", "repository directory")
	remote := fs.String("remote", "origin", "push remote name")
	remoteURL := fs.String("remote-url", "", "remote URL for token authenticated pushes")
	tokenEnv := fs.String("token-env", "NDEMO_PAT_TOKEN", "environment variable holding the push token")
	check := fs.String("check", "", "check command that must pass before tagging")
	fs.Parse(args)

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	tagger := release.New(release.Options{
		RepoDir:      *repo,
		Remote:       *remote,
		RemoteURL:    *remoteURL,
		TokenEnv:     *tokenEnv,
		CheckCommand: *check,
		Logger:       logger,
	})

	res, err := tagger.Run(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", res.Outcome, res.Tag)
	return nil
}
