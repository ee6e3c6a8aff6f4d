package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/logrusorgru/aurora"
	"github.com/pkg/errors"
)

type PrettyPrinter struct {
	writer        io.Writer
	plain         Printer
	aurora        aurora.Aurora
	headerPalette *HeaderPalette
	jsonPalette   *JSONPalette
}

type PrettyPrinterConfig struct {
	Writer      io.Writer
	EnableColor bool
}

type HeaderPalette struct {
	Proto          aurora.Color
	Status         aurora.Color
	ErrorStatus    aurora.Color
	FieldName      aurora.Color
	FieldValue     aurora.Color
	FieldSeparator aurora.Color
}

var defaultHeaderPalette = HeaderPalette{
	Proto:          aurora.BlueFg,
	Status:         aurora.BrownFg | aurora.BoldFm,
	ErrorStatus:    aurora.RedFg | aurora.BoldFm,
	FieldName:      aurora.GrayFg,
	FieldValue:     aurora.CyanFg,
	FieldSeparator: aurora.GrayFg,
}

type JSONPalette struct {
	Name    aurora.Color
	String  aurora.Color
	Number  aurora.Color
	Boolean aurora.Color
	Null    aurora.Color
	Symbol  aurora.Color
}

var defaultJSONPalette = JSONPalette{
	Name:    aurora.BlueFg,
	String:  aurora.BrownFg,
	Number:  aurora.CyanFg,
	Boolean: aurora.GreenFg,
	Null:    aurora.MagentaFg,
	Symbol:  aurora.GrayFg,
}

func NewPrettyPrinter(config PrettyPrinterConfig) Printer {
	return &PrettyPrinter{
		writer:        config.Writer,
		plain:         NewPlainPrinter(config.Writer),
		aurora:        aurora.NewAurora(config.EnableColor),
		headerPalette: &defaultHeaderPalette,
		jsonPalette:   &defaultJSONPalette,
	}
}

func (p *PrettyPrinter) PrintStatusLine(proto string, status string, statusCode int) error {
	color := p.headerPalette.Status
	if statusCode >= 400 {
		color = p.headerPalette.ErrorStatus
	}
	fmt.Fprintf(p.writer, "%s %s\n",
		p.aurora.Colorize(proto, p.headerPalette.Proto),
		p.aurora.Colorize(status, color))
	return nil
}

func (p *PrettyPrinter) PrintHeader(header http.Header) error {
	for _, name := range sortedNames(header) {
		for _, value := range header[name] {
			fmt.Fprintf(p.writer, "%s%s %s\n",
				p.aurora.Colorize(name, p.headerPalette.FieldName),
				p.aurora.Colorize(":", p.headerPalette.FieldSeparator),
				p.aurora.Colorize(value, p.headerPalette.FieldValue))
		}
	}
	fmt.Fprintln(p.writer)
	return nil
}

func isJSON(contentType string) bool {
	contentType = strings.TrimSpace(contentType)

	semicolon := strings.Index(contentType, ";")
	if semicolon != -1 {
		contentType = contentType[:semicolon]
	}

	return contentType == "application/json" || strings.HasSuffix(contentType, "+json")
}

func (p *PrettyPrinter) PrintBody(body []byte, contentType string) error {
	// Fallback to PlainPrinter when the body is not JSON
	if !isJSON(contentType) {
		return p.plain.PrintBody(body, contentType)
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var v interface{}
	if err := decoder.Decode(&v); err != nil {
		return p.plain.PrintBody(body, contentType)
	}

	if err := p.printJSON(v, 0); err != nil {
		return errors.Wrap(err, "printing JSON body")
	}
	fmt.Fprintln(p.writer)
	return nil
}

func (p *PrettyPrinter) printJSON(v interface{}, depth int) error {
	switch v := v.(type) {
	case map[string]interface{}:
		return p.printMap(v, depth)
	case []interface{}:
		return p.printArray(v, depth)
	case string:
		s, err := marshalJSON(v)
		if err != nil {
			return err
		}
		fmt.Fprint(p.writer, p.aurora.Colorize(s, p.jsonPalette.String))
	case json.Number:
		fmt.Fprint(p.writer, p.aurora.Colorize(v.String(), p.jsonPalette.Number))
	case bool:
		fmt.Fprint(p.writer, p.aurora.Colorize(fmt.Sprint(v), p.jsonPalette.Boolean))
	case nil:
		fmt.Fprint(p.writer, p.aurora.Colorize("null", p.jsonPalette.Null))
	default:
		return errors.Errorf("unexpected JSON value: %T", v)
	}
	return nil
}

func (p *PrettyPrinter) printMap(m map[string]interface{}, depth int) error {
	if len(m) == 0 {
		fmt.Fprint(p.writer, p.aurora.Colorize("{}", p.jsonPalette.Symbol))
		return nil
	}
	fmt.Fprintln(p.writer, p.aurora.Colorize("{", p.jsonPalette.Symbol))
	for i, name := range sortedKeys(m) {
		key, err := marshalJSON(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(p.writer, "%s%s%s ", indent(depth+1),
			p.aurora.Colorize(key, p.jsonPalette.Name),
			p.aurora.Colorize(":", p.jsonPalette.Symbol))
		if err := p.printJSON(m[name], depth+1); err != nil {
			return err
		}
		if i < len(m)-1 {
			fmt.Fprint(p.writer, p.aurora.Colorize(",", p.jsonPalette.Symbol))
		}
		fmt.Fprintln(p.writer)
	}
	fmt.Fprintf(p.writer, "%s%s", indent(depth), p.aurora.Colorize("}", p.jsonPalette.Symbol))
	return nil
}

func (p *PrettyPrinter) printArray(a []interface{}, depth int) error {
	if len(a) == 0 {
		fmt.Fprint(p.writer, p.aurora.Colorize("[]", p.jsonPalette.Symbol))
		return nil
	}
	fmt.Fprintln(p.writer, p.aurora.Colorize("[", p.jsonPalette.Symbol))
	for i, elem := range a {
		fmt.Fprint(p.writer, indent(depth+1))
		if err := p.printJSON(elem, depth+1); err != nil {
			return err
		}
		if i < len(a)-1 {
			fmt.Fprint(p.writer, p.aurora.Colorize(",", p.jsonPalette.Symbol))
		}
		fmt.Fprintln(p.writer)
	}
	fmt.Fprintf(p.writer, "%s%s", indent(depth), p.aurora.Colorize("]", p.jsonPalette.Symbol))
	return nil
}

func marshalJSON(s string) (string, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(s); err != nil {
		return "", errors.Wrap(err, "encoding JSON string")
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func indent(depth int) string {
	return strings.Repeat("    ", depth)
}
