package flags

import (
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/mattn/go-isatty"
	"github.com/nojima/fetchie-go/ban"
	"github.com/nojima/fetchie-go/exchange"
	"github.com/nojima/fetchie-go/input"
	"github.com/nojima/fetchie-go/output"
	"github.com/nojima/fetchie-go/recovery"
	"github.com/nojima/fetchie-go/source"
	"github.com/nojima/fetchie-go/transform"
	"github.com/pborman/getopt"
	"github.com/pkg/errors"
)

var reNumber = regexp.MustCompile(`^[0-9.]+$`)

type terminalInfo struct {
	stdinIsTerminal  bool
	stdoutIsTerminal bool
}

// FTPOptions are the FTP settings given on the command line.
type FTPOptions struct {
	User        string
	Password    string
	HasPassword bool
	Prefix      string
	Ext         string
	Cleanup     bool
	Groups      []source.Group
}

type OptionSet struct {
	InputOptions    input.Options
	ExchangeOptions *exchange.Options
	ClientConfig    recovery.Config
	FTPOptions      FTPOptions
	Ban             ban.Criteria
	Transforms      transform.Chain
	OutputOptions   output.Options

	Verbose      bool
	ShowVersion  bool
	ShowLicenses bool
}

func Parse(args []string) ([]string, func(io.Writer), *OptionSet, error) {
	return parse(args, terminalInfo{
		stdinIsTerminal:  isatty.IsTerminal(os.Stdin.Fd()),
		stdoutIsTerminal: isatty.IsTerminal(os.Stdout.Fd()),
	})
}

func parse(args []string, terminal terminalInfo) ([]string, func(io.Writer), *OptionSet, error) {
	// Parse flags
	optionSet := &OptionSet{
		ExchangeOptions: exchange.NewOptions(),
		ClientConfig:    recovery.DefaultConfig(),
	}
	outputOptions := &optionSet.OutputOptions
	var ignoreStdin, noFollow, noCA, includeHeader bool
	var userAgent, transforms, ftpUser string
	var banSubstrings, banURLs, banWeights []string
	var groups repeatedValue
	printFlag := "\000" // "\000" is a special value that indicates user did not specified --print
	timeout := "30s"
	maxRedirects := -1

	flagSet := getopt.New()
	flagSet.SetParameters("[MODE] LOCATION [REQUEST_ITEM [REQUEST_ITEM ...]]")
	flagSet.BoolVarLong(&optionSet.Verbose, "verbose", 'v', "log every attempt and recovery")
	flagSet.StringVarLong(&printFlag, "print", 'p', "specifies what the output should contain (hb)")
	flagSet.BoolVarLong(&ignoreStdin, "ignore-stdin", 0, "do not attempt to read stdin")
	flagSet.StringVarLong(&timeout, "timeout", 0, "connect and read timeout, in seconds or as a duration")
	flagSet.BoolVarLong(&noFollow, "no-follow", 0, "do not follow redirects")
	flagSet.IntVarLong(&maxRedirects, "max-redirects", 0, "maximum number of redirects to follow")
	flagSet.BoolVarLong(&optionSet.ClientConfig.ManualRedirects, "manual-redirects", 0, "chase redirects without the transport's help")
	flagSet.StringVarLong(&userAgent, "user-agent", 'A', "User-Agent header")
	flagSet.BoolVarLong(&includeHeader, "headers", 0, "capture the raw response header block")
	flagSet.StringVarLong(&optionSet.ClientConfig.CAFile, "ca", 0, "CA bundle used to verify servers")
	flagSet.BoolVarLong(&noCA, "no-ca", 0, "do not verify server certificates")
	flagSet.StringVarLong(&optionSet.ClientConfig.CookieDir, "cookie-dir", 0, "directory where cookies are saved")
	flagSet.StringVarLong(&transforms, "transform", 't', "comma-separated transforms applied to the result")
	flagSet.ListVarLong(&banSubstrings, "ban", 0, "reject results whose final URL contains this string")
	flagSet.ListVarLong(&banURLs, "ban-url", 0, "reject results whose final URL is this URL")
	flagSet.ListVarLong(&banWeights, "ban-weight", 0, "reject results of this size (e.g. 0B, 1K)")
	flagSet.StringVarLong(&ftpUser, "auth", 'a', "FTP credentials as USER[:PASSWORD]")
	flagSet.StringVarLong(&optionSet.FTPOptions.Prefix, "prefix", 0, "FTP selection: file name prefix")
	flagSet.StringVarLong(&optionSet.FTPOptions.Ext, "ext", 0, "FTP selection: file extension")
	flagSet.BoolVarLong(&optionSet.FTPOptions.Cleanup, "cleanup", 0, "FTP selection: delete the files that were not selected")
	flagSet.VarLong(&groups, "group", 0, "FTP [LAST_BY_DDMMYY] group as SUFFIX:REGEX (repeatable)")
	flagSet.StringVarLong(&outputOptions.OutputFile, "output", 'o', "save the result to this file")
	flagSet.BoolVarLong(&outputOptions.Overwrite, "overwrite", 0, "overwrite the output file")
	flagSet.BoolVarLong(&optionSet.ShowVersion, "version", 0, "print version and exit")
	flagSet.BoolVarLong(&optionSet.ShowLicenses, "licenses", 0, "print license information and exit")
	if err := flagSet.Getopt(args, nil); err != nil {
		return nil, flagSet.PrintUsage, nil, errors.Wrap(err, "parsing flags")
	}

	// Check stdin
	if !ignoreStdin && !terminal.stdinIsTerminal {
		optionSet.InputOptions.ReadStdin = true
	}

	// Parse --print
	if err := parsePrintFlag(printFlag, terminal.stdoutIsTerminal, outputOptions); err != nil {
		return nil, flagSet.PrintUsage, nil, err
	}
	outputOptions.EnableColor = terminal.stdoutIsTerminal

	// Transport options
	d, err := parseDurationOrSeconds(timeout)
	if err != nil {
		return nil, flagSet.PrintUsage, nil, err
	}
	options := optionSet.ExchangeOptions
	settings := map[exchange.Key]interface{}{
		exchange.ConnectTimeout: d,
		exchange.ReadTimeout:    d,
	}
	if noFollow {
		settings[exchange.FollowRedirects] = false
	}
	if maxRedirects >= 0 {
		settings[exchange.MaxRedirects] = maxRedirects
	}
	if userAgent != "" {
		settings[exchange.UserAgent] = userAgent
	}
	if includeHeader {
		settings[exchange.IncludeHeader] = true
	}
	for key, value := range settings {
		if err := options.Set(key, value); err != nil {
			return nil, flagSet.PrintUsage, nil, err
		}
	}
	optionSet.ClientConfig.NoCA = noCA

	// Result handling
	optionSet.Transforms = transform.Parse(transforms)
	if err := transform.Validate(optionSet.Transforms); err != nil {
		return nil, flagSet.PrintUsage, nil, err
	}
	optionSet.Ban = ban.Criteria{Substrings: banSubstrings, URLs: banURLs}
	for _, w := range banWeights {
		n, err := parseByteSize(w)
		if err != nil {
			return nil, flagSet.PrintUsage, nil, err
		}
		optionSet.Ban.ByteLengths = append(optionSet.Ban.ByteLengths, n)
	}

	// FTP
	if ftpUser != "" {
		parts := strings.SplitN(ftpUser, ":", 2)
		optionSet.FTPOptions.User = parts[0]
		if len(parts) == 2 {
			optionSet.FTPOptions.Password = parts[1]
			optionSet.FTPOptions.HasPassword = true
		}
	}
	for _, g := range groups {
		group, err := parseGroup(g)
		if err != nil {
			return nil, flagSet.PrintUsage, nil, err
		}
		optionSet.FTPOptions.Groups = append(optionSet.FTPOptions.Groups, group)
	}

	return flagSet.Args(), flagSet.PrintUsage, optionSet, nil
}

// AskPassword prompts for the password of user on the terminal.
func AskPassword(user string) (string, error) {
	return askPassword("Password for " + user)
}

func parsePrintFlag(printFlag string, stdoutIsTerminal bool, outputOptions *output.Options) error {
	if printFlag == "\000" {
		// --print is not specified
		if stdoutIsTerminal {
			outputOptions.PrintResponseHeader = true
			outputOptions.PrintResponseBody = true
		} else {
			outputOptions.PrintResponseBody = true
		}
	} else {
		for _, c := range printFlag {
			switch c {
			case 'h':
				outputOptions.PrintResponseHeader = true
			case 'b':
				outputOptions.PrintResponseBody = true
			default:
				return errors.Errorf("Invalid char in --print value (must be consist of hb): %c", c)
			}
		}
	}
	return nil
}

func parseDurationOrSeconds(timeout string) (time.Duration, error) {
	if reNumber.MatchString(timeout) {
		timeout += "s"
	}
	d, err := time.ParseDuration(timeout)
	if err != nil {
		return time.Duration(0), errors.Errorf("Value of --timeout must be a number or duration string: %v", timeout)
	}
	return d, nil
}

// parseByteSize accepts plain byte counts and sizes such as "1K" or "2M".
func parseByteSize(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n, nil
	}
	n, err := bytefmt.ToBytes(s)
	if err != nil {
		return 0, errors.Errorf("Value of --ban-weight must be a byte size: %v", s)
	}
	return int(n), nil
}

// repeatedValue collects every occurrence of a flag as is. Unlike getopt's
// list flags it does not split on commas, so regexes keep their quantifiers.
type repeatedValue []string

func (r *repeatedValue) Set(value string, opt getopt.Option) error {
	*r = append(*r, value)
	return nil
}

func (r *repeatedValue) String() string {
	return strings.Join(*r, " ")
}

// parseGroup parses SUFFIX:REGEX. Either part may be empty.
func parseGroup(s string) (source.Group, error) {
	var group source.Group
	parts := strings.SplitN(s, ":", 2)
	group.Suffix = parts[0]
	if len(parts) == 2 && parts[1] != "" {
		re, err := regexp.Compile(parts[1])
		if err != nil {
			return group, errors.Wrapf(err, "Value of --group has an invalid pattern: %v", parts[1])
		}
		group.Pattern = re
	}
	return group, nil
}
