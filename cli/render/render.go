// Package render provides centralized output rendering for the scenesync CLI.
//
// Format selection rules:
//   - If output is a TTY, default to table
//   - If output is not a TTY, default to json
//   - --format flag always overrides defaults
//   - Invalid formats are errors
//
// --no-color affects table output only.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string, returning an error for invalid formats.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil // Let caller decide default
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

var keyStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))

// Renderer handles output formatting.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer creates a renderer from CLI context.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}

	if format == "" {
		if isTTY(os.Stdout) {
			format = FormatTable
		} else {
			format = FormatJSON
		}
	}

	return &Renderer{
		format:  format,
		noColor: c.Bool("no-color") || !isTTY(os.Stdout),
		out:     os.Stdout,
	}, nil
}

// NewRendererWithWriter creates a renderer with a custom writer (for testing).
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{
		format:  format,
		noColor: noColor,
		out:     out,
	}
}

// Format returns the selected output format.
func (r *Renderer) Format() Format {
	return r.format
}

// Render outputs the data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		return r.renderTable(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

func (r *Renderer) renderTable(data any) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	v := reflect.ValueOf(data)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			fmt.Fprintln(w, "(none)")
			return nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return r.rows(w, v)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			name, ok := fieldName(t.Field(i))
			if !ok {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\n", r.key(name+":"), formatValue(v.Field(i)))
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			fmt.Fprintf(w, "%s\t%s\n", r.key(fmt.Sprint(iter.Key().Interface())+":"), formatValue(iter.Value()))
		}
	default:
		fmt.Fprintln(w, formatValue(v))
	}
	return nil
}

// rows renders a slice of structs as a header line plus one row each.
func (r *Renderer) rows(w io.Writer, v reflect.Value) error {
	if v.Len() == 0 {
		fmt.Fprintln(w, "(no results)")
		return nil
	}

	elem := v.Type().Elem()
	for elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct {
		for i := 0; i < v.Len(); i++ {
			fmt.Fprintln(w, formatValue(v.Index(i)))
		}
		return nil
	}

	var headers []string
	var fields []int
	for i := 0; i < elem.NumField(); i++ {
		if name, ok := fieldName(elem.Field(i)); ok {
			headers = append(headers, r.key(strings.ToUpper(name)))
			fields = append(fields, i)
		}
	}
	fmt.Fprintln(w, strings.Join(headers, "\t"))

	for i := 0; i < v.Len(); i++ {
		row := v.Index(i)
		for row.Kind() == reflect.Ptr {
			row = row.Elem()
		}
		cells := make([]string, 0, len(fields))
		for _, f := range fields {
			if row.IsValid() {
				cells = append(cells, formatValue(row.Field(f)))
			} else {
				cells = append(cells, "")
			}
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	return nil
}

func (r *Renderer) key(s string) string {
	if r.noColor {
		return s
	}
	return keyStyle.Render(s)
}

// fieldName prefers the json tag; "-" and unexported fields are skipped.
func fieldName(f reflect.StructField) (string, bool) {
	if !f.IsExported() {
		return "", false
	}
	if tag := f.Tag.Get("json"); tag != "" {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return "", false
		}
		if name != "" {
			return name, true
		}
	}
	return strings.ToLower(f.Name), true
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
	stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
)

func formatValue(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}

	switch {
	case v.Type() == durationType:
		return time.Duration(v.Int()).Round(time.Millisecond).String()
	case v.Type() == timeType:
		t := v.Interface().(time.Time)
		if t.IsZero() {
			return ""
		}
		return t.Format(time.RFC3339)
	case v.Kind() != reflect.String && v.Type().Implements(stringerType):
		return v.Interface().(fmt.Stringer).String()
	}

	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		return "{...}"
	default:
		return fmt.Sprint(v.Interface())
	}
}

// isTTY returns true if the file is a terminal.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
