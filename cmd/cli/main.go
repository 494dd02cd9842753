package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const defaultServerURL = "http://localhost:12212"

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true).Underline(true)
	receiptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func main() {
	var serverURL string
	flag.StringVar(&serverURL, "server", defaultServerURL, "Server URL")
	flag.StringVar(&serverURL, "s", defaultServerURL, "Server URL (short)")
	flag.Parse()

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	result := executeCommand(client, serverURL, quoteArgs(flag.Args()))

	if !result.Success {
		fmt.Fprintln(os.Stderr, renderError(result))
		os.Exit(1)
	}
	fmt.Println(renderSuccess(result))
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Bill Printer CLI

Usage:
  bill-cli [flags] <command>

Flags:
  -s, -server <url>    Server URL (default: %s)

Commands:
  status                              Connection state and default printer
  devices                             Printers from the last discovery
  discover                            Scan for printers
  connect <device-id | host:port>     Connect to a printer
  disconnect                          Drop the active printer
  preview <amount...>                 Show the receipt for the amounts
  print <amount...>                   Queue a receipt for printing
  jobs                                List print jobs
  job <id> | job clear                Show a job, or clear completed jobs
  help                                Server-side help

Examples:
  bill-cli discover
  bill-cli connect AA:BB:CC:DD:EE:FF
  bill-cli print 120 45.5 300
  bill-cli -s http://localhost:8080 status

`, defaultServerURL)
}

// CommandResult is the decoded /command response. The server flattens the
// command data into the top level object, so everything besides the common
// fields lands in Data.
type CommandResult struct {
	Success bool
	Message string
	Error   string
	Data    map[string]any
}

func quoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t") && !strings.ContainsAny(a, `"'`) {
			a = `"` + a + `"`
		}
		quoted[i] = a
	}
	return strings.Join(quoted, " ")
}

func executeCommand(client *http.Client, serverURL, command string) *CommandResult {
	url := strings.TrimSuffix(serverURL, "/") + "/command"

	body, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		return &CommandResult{Error: fmt.Sprintf("failed to marshal request: %v", err)}
	}

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return &CommandResult{Error: fmt.Sprintf("failed to connect to server: %v", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &CommandResult{Error: fmt.Sprintf("failed to read response: %v", err)}
	}

	return decodeResult(data)
}

func decodeResult(data []byte) *CommandResult {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return &CommandResult{Error: fmt.Sprintf("failed to parse response: %v", err)}
	}

	result := &CommandResult{Data: make(map[string]any)}
	for k, v := range raw {
		switch k {
		case "success":
			result.Success, _ = v.(bool)
		case "message":
			result.Message, _ = v.(string)
		case "error":
			result.Error, _ = v.(string)
		default:
			result.Data[k] = v
		}
	}
	return result
}

func renderError(result *CommandResult) string {
	var b strings.Builder
	if result.Message != "" {
		b.WriteString(errorStyle.Render("✗ "+result.Message) + "\n")
	}
	b.WriteString(errorStyle.Render("✗ ") + result.Error)
	return b.String()
}

func renderSuccess(result *CommandResult) string {
	var b strings.Builder

	if payload, ok := result.Data["payload"].(string); ok {
		b.WriteString(receiptStyle.Render(previewText(payload)) + "\n")
		if total, ok := result.Data["total"]; ok {
			b.WriteString(labelStyle.Render("Total: ") + fmt.Sprint(total) + "\n")
		}
		return strings.TrimRight(b.String(), "\n")
	}

	if result.Message != "" {
		b.WriteString(successStyle.Render("✓ ") + result.Message + "\n")
	}

	if devices, ok := result.Data["devices"].([]any); ok && len(devices) > 0 {
		b.WriteString("\n" + headerStyle.Render("Devices") + "\n")
		for _, d := range devices {
			if dev, ok := d.(map[string]any); ok {
				fmt.Fprintf(&b, "  %-20v %v %s\n", dev["id"], dev["name"], labelStyle.Render(fmt.Sprint(dev["kind"])))
			}
		}
	}

	if jobs, ok := result.Data["jobs"].([]any); ok && len(jobs) > 0 {
		b.WriteString("\n" + headerStyle.Render("Jobs") + "\n")
		for _, j := range jobs {
			if job, ok := j.(map[string]any); ok {
				line := fmt.Sprintf("  %v  %-10v attempts=%v", job["id"], job["status"], job["attempts"])
				if e, ok := job["error"]; ok {
					line += "  " + errorStyle.Render(fmt.Sprint(e))
				}
				b.WriteString(line + "\n")
			}
		}
	}

	keys := make([]string, 0, len(result.Data))
	for k, v := range result.Data {
		switch v.(type) {
		case []any, map[string]any:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s %v\n", labelStyle.Render(k+":"), result.Data[k])
	}

	return strings.TrimRight(b.String(), "\n")
}

// previewText shows a payload the way a printer would lay it out: markup
// removed and a line break at each line marker
func previewText(payload string) string {
	var b strings.Builder
	for i := 0; i < len(payload); {
		switch {
		case strings.HasPrefix(payload[i:], "[L]"):
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
				b.WriteByte('\n')
			}
			i += 3
		case payload[i] == '<':
			end := strings.IndexByte(payload[i:], '>')
			if end < 0 {
				b.WriteString(payload[i:])
				i = len(payload)
				continue
			}
			i += end + 1
		default:
			b.WriteByte(payload[i])
			i++
		}
	}
	return strings.Trim(b.String(), "\n")
}
