package version

import (
	"fmt"
	"io"
)

type License struct {
	ModuleName  string
	LicenseName string
	Link        string
}

var Licenses = []License{
	{"fetchie-go", "MIT License", "https://github.com/nojima/fetchie-go/blob/master/LICENSE"},
	{"Go", "BSD License", "https://golang.org/LICENSE"},
	{"aurora", "WTFPL", "https://github.com/logrusorgru/aurora/blob/master/LICENSE"},
	{"go-isatty", "MIT License", "https://github.com/mattn/go-isatty/blob/master/LICENSE"},
	{"getopt", "BSD License", "https://github.com/pborman/getopt/blob/master/LICENSE"},
	{"errors", "BSD License", "https://github.com/pkg/errors/blob/master/LICENSE"},
	{"bytefmt", "Apache License", "https://github.com/cloudfoundry/bytefmt/blob/master/LICENSE"},
	{"ftp", "ISC License", "https://github.com/jlaffaye/ftp/blob/master/LICENSE"},
	{"backoff", "MIT License", "https://github.com/cenkalti/backoff/blob/v4/LICENSE"},
	{"uuid", "BSD License", "https://github.com/google/uuid/blob/master/LICENSE"},
	{"tint", "MIT License", "https://github.com/lmittmann/tint/blob/main/LICENSE"},
	{"godotenv", "MIT License", "https://github.com/joho/godotenv/blob/main/LICENCE"},
	{"client_golang", "Apache License", "https://github.com/prometheus/client_golang/blob/main/LICENSE"},
	{"yaml", "MIT and Apache License", "https://github.com/go-yaml/yaml/blob/v3/LICENSE"},
	{"golang.org/x", "BSD License", "https://golang.org/LICENSE"},
}

func PrintLicenses(w io.Writer) {
	for _, license := range Licenses {
		fmt.Fprintf(w, "%s:\n  %s\n  %s\n\n",
			license.ModuleName,
			license.LicenseName,
			license.Link)
	}
}
