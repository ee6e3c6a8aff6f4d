package output

import (
	"io"
	"net/http"
)

type Printer interface {
	PrintStatusLine(proto string, status string, statusCode int) error
	PrintHeader(header http.Header) error
	PrintBody(body []byte, contentType string) error
}

type PrinterConfig struct {
	Writer      io.Writer
	EnableColor bool
}

// NewPrinter returns a pretty printer on colour terminals and a plain one
// otherwise.
func NewPrinter(config PrinterConfig) Printer {
	if config.EnableColor {
		return NewPrettyPrinter(PrettyPrinterConfig{Writer: config.Writer, EnableColor: true})
	}
	return NewPlainPrinter(config.Writer)
}
