package fetchie

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/nojima/fetchie-go/flags"
	"github.com/nojima/fetchie-go/input"
	"github.com/nojima/fetchie-go/output"
	"github.com/nojima/fetchie-go/source"
	"github.com/nojima/fetchie-go/version"
	"github.com/pkg/errors"
)

// Environment variables read by the commands, also from a .env file.
const (
	EnvFTPUser     = "FETCHIE_FTP_USER"
	EnvFTPPassword = "FETCHIE_FTP_PASSWORD"
)

// LoadEnv loads .env from the working directory when present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		slog.Warn("failed to load .env", "err", err)
	}
}

// SetupLogging installs a tint handler on stderr as the default logger.
func SetupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})))
}

func Main() error {
	LoadEnv()

	// Parse flags
	args, usage, optionSet, err := flags.Parse(os.Args)
	if err != nil {
		if usage != nil {
			usage(os.Stderr)
		}
		return err
	}
	if optionSet.ShowVersion {
		os.Stdout.WriteString(version.Current().String() + "\n")
		return nil
	}
	if optionSet.ShowLicenses {
		version.PrintLicenses(os.Stdout)
		return nil
	}
	SetupLogging(optionSet.Verbose)

	// Parse positional arguments
	in, err := input.ParseArgs(args, os.Stdin, &optionSet.InputOptions)
	if _, ok := errors.Cause(err).(*input.UsageError); ok {
		usage(os.Stderr)
		return err
	}
	if err != nil {
		return err
	}

	// Build the request
	base, _ := in.Target()
	req, err := in.Request(optionSet.ExchangeOptions)
	if err != nil {
		return err
	}
	req.Transforms = optionSet.Transforms
	req.Ban = optionSet.Ban
	if in.Mode == source.ModeFTP {
		if err := setFTPParams(in, optionSet, req); err != nil {
			return err
		}
	}

	orchestrator, err := source.New(source.Config{
		Mode:   in.Mode,
		Base:   base,
		Client: optionSet.ClientConfig,
		Logger: slog.Default(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Fetch
	body, err := orchestrator.GetContents(ctx, req, true)
	defer func() {
		if err := orchestrator.Close(); err != nil {
			slog.Warn("failed to close", "err", err)
		}
	}()
	if err != nil {
		for _, entry := range orchestrator.Errors().Entries() {
			slog.Debug("error log", "entry", entry.String())
		}
		if client := orchestrator.Client(); client != nil {
			for _, entry := range client.Errors().Entries() {
				slog.Debug("client error log", "entry", entry.String())
			}
		}
		return err
	}

	// Print response
	options := &optionSet.OutputOptions
	if options.OutputFile != "" {
		return output.NewFileWriter(in.URL.String(), options).Write(body, os.Stderr)
	}
	writer := bufio.NewWriter(os.Stdout)
	defer writer.Flush()
	printer := output.NewPrinter(output.PrinterConfig{
		Writer:      writer,
		EnableColor: options.EnableColor,
	})
	contentType := ""
	if client := orchestrator.Client(); client != nil {
		info := client.Info()
		contentType = info.Header.Get("Content-Type")
		if options.PrintResponseHeader {
			if err := printer.PrintStatusLine(info.Proto, info.Status, info.StatusCode); err != nil {
				return err
			}
			if err := printer.PrintHeader(info.Header); err != nil {
				return err
			}
		}
	}
	if options.PrintResponseBody {
		if err := printer.PrintBody(body, contentType); err != nil {
			return err
		}
	}
	return nil
}

// setFTPParams fills in credentials from --auth, the location, the
// environment or a prompt, in that order.
func setFTPParams(in *input.Input, optionSet *flags.OptionSet, req *source.Request) error {
	ftp := optionSet.FTPOptions
	user, password, hasPassword := ftp.User, ftp.Password, ftp.HasPassword
	if user == "" {
		user, password, hasPassword = in.Credentials()
		if in.URL.User == nil && os.Getenv(EnvFTPUser) != "" {
			user = os.Getenv(EnvFTPUser)
			password, hasPassword = os.LookupEnv(EnvFTPPassword)
		}
	}
	if !hasPassword && user != "anonymous" {
		p, err := flags.AskPassword(user)
		if err != nil {
			return err
		}
		password = p
	}
	req.FTP = source.FTPParams{
		User:     user,
		Password: password,
		Prefix:   ftp.Prefix,
		Ext:      ftp.Ext,
		Cleanup:  ftp.Cleanup,
		Groups:   ftp.Groups,
	}
	return nil
}
