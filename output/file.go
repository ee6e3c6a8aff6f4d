package output

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"code.cloudfoundry.org/bytefmt"
	"github.com/pkg/errors"
)

var reIndexSuffix = regexp.MustCompile(`\.(\d+)$`)

type FileWriter struct {
	fullPath string
}

// NewFileWriter writes to options.OutputFile, or to the last path element of
// location in the working directory.
func NewFileWriter(location string, options *Options) *FileWriter {
	var fullPath string

	if options.OutputFile == "" {
		name := filepath.Base(strings.SplitN(location, "?", 2)[0])
		if name == "." || name == "/" || strings.HasSuffix(name, ":") {
			name = "index.html"
		}
		fullPath = fmt.Sprintf("./%s", name)
	} else {
		fullPath = options.OutputFile
	}

	if !options.Overwrite {
		fullPath = makeNonOverlappingFilename(fullPath)
	}

	return &FileWriter{
		fullPath: fullPath,
	}
}

func makeNonOverlappingFilename(path string) string {
	_, err := os.Stat(path)
	if err == nil {
		newPath := reIndexSuffix.ReplaceAllStringFunc(path, func(index string) string {
			i, err := strconv.Atoi(strings.TrimPrefix(index, "."))
			if err != nil {
				panic(err)
			}
			i++
			return fmt.Sprintf(".%d", i)
		})
		if path == newPath {
			path = fmt.Sprintf("%s.%d", path, 1)
		} else {
			path = newPath
		}
		path = makeNonOverlappingFilename(path)
	}
	return path
}

// Write stores body and prints a one-line summary to summary.
func (f *FileWriter) Write(body []byte, summary io.Writer) error {
	if err := ioutil.WriteFile(f.fullPath, body, 0644); err != nil {
		return errors.Wrapf(err, "writing '%s'", f.fullPath)
	}
	fmt.Fprintf(summary, "Saved %s to %s\n", bytefmt.ByteSize(uint64(len(body))), f.fullPath)
	return nil
}

func (f *FileWriter) Path() string {
	return f.fullPath
}

func (f *FileWriter) Filename() string {
	return filepath.Base(f.fullPath)
}
