package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Форматы вывода
const (
	formatAuto = "auto"
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func addFormatFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "format", "o", formatAuto,
		"Output format: auto, text, json, yaml (auto is text on a terminal, json otherwise)")
}

// resolveFormat выбирает text для терминала и json для пайпа
func (c *Cli) resolveFormat(format string) (string, error) {
	switch format {
	case formatAuto, "":
		if c.io.IsTerminal() {
			return formatText, nil
		}
		return formatJSON, nil
	case formatText, formatJSON, formatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("unknown output format %q", format)
	}
}

// render печатает v в выбранном формате; text рисует человекочитаемый вид
func (c *Cli) render(format string, v any, text func() error) error {
	format, err := c.resolveFormat(format)
	if err != nil {
		return err
	}

	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		c.io.Println(string(data))
		return nil
	case formatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode output: %w", err)
		}
		_, err = c.io.Write(data)
		return err
	default:
		return text()
	}
}

func (c *Cli) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.io, 0, 4, 2, ' ', 0)
}

// readPayload берет payload из флага, файла или stdin ("-").
// Корректный JSON сжимается, некорректный отклонит журнал операций.
func (c *Cli) readPayload(inline, file string) (json.RawMessage, error) {
	raw, err := c.readRawPayload(inline, file)
	if err != nil || len(raw) == 0 {
		return raw, err
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw, nil
	}
	return json.RawMessage(buf.Bytes()), nil
}

func (c *Cli) readRawPayload(inline, file string) (json.RawMessage, error) {
	switch {
	case inline != "" && file != "":
		return nil, fmt.Errorf("use either --payload or --file, not both")
	case inline != "":
		return json.RawMessage(inline), nil
	case file == "-":
		data, err := c.io.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
		}
		return json.RawMessage(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload file: %w", err)
		}
		return json.RawMessage(data), nil
	default:
		return nil, nil
	}
}

// shortID укорачивает UUID для табличного вывода
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
