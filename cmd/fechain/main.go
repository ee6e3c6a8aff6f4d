package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/nojima/fetchie-go"
	"github.com/nojima/fetchie-go/recovery"
	"github.com/pborman/getopt"
	"github.com/pkg/errors"
)

func run() error {
	fetchie.LoadEnv()

	var verbose bool
	var outDir string
	client := recovery.DefaultConfig()
	flagSet := getopt.New()
	flagSet.SetParameters("CHAIN_FILE [CHAIN_FILE ...]")
	flagSet.BoolVarLong(&verbose, "verbose", 'v', "log every step, attempt and recovery")
	flagSet.StringVarLong(&outDir, "out", 'o', "write each result to DIR/<chain>.out instead of stdout")
	flagSet.StringVarLong(&client.CookieDir, "cookie-dir", 0, "directory where cookies are saved")
	flagSet.BoolVarLong(&client.ManualRedirects, "manual-redirects", 0, "chase redirects without the transport's help")
	if err := flagSet.Getopt(os.Args, nil); err != nil {
		flagSet.PrintUsage(os.Stderr)
		return err
	}
	if flagSet.NArgs() == 0 {
		flagSet.PrintUsage(os.Stderr)
		return errors.New("at least one chain file is required")
	}
	fetchie.SetupLogging(verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := fetchie.RunChains(ctx, flagSet.Args(), client)
	if err != nil {
		return err
	}
	for _, r := range results {
		if outDir == "" {
			os.Stdout.Write(r.Result)
			continue
		}
		name := strings.TrimSuffix(filepath.Base(r.Path), filepath.Ext(r.Path)) + ".out"
		if err := ioutil.WriteFile(filepath.Join(outDir, name), r.Result, 0644); err != nil {
			return errors.Wrapf(err, "writing result of '%s'", r.Path)
		}
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
