// Package tui is the server console: printers, the print queue, status and
// logs, with a command line that runs the same commands as the API.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/thereceipt/bill-printer/internal/command"
	"github.com/thereceipt/bill-printer/internal/registry"
	"github.com/thereceipt/bill-printer/internal/session"
)

const (
	maxLogLines     = 500
	refreshInterval = 2 * time.Second
	commandTimeout  = 2 * time.Minute
)

// TViewApp is the main TUI application using tview
type TViewApp struct {
	App      *tview.Application
	session  *session.Session
	queue    *session.Queue
	executor *command.Executor
	port     string

	flex         *tview.Flex
	printersList *tview.List
	queueTable   *tview.Table
	statusBox    *tview.TextView
	logsArea     *tview.TextView
	commandInput *tview.InputField

	// listed mirrors printersList so a selection maps back to a device
	listed    []registry.Device
	logMu     sync.Mutex
	startTime time.Time
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewTViewApp creates a new tview-based TUI
func NewTViewApp(s *session.Session, q *session.Queue, executor *command.Executor, port string) *TViewApp {
	t := &TViewApp{
		App:       tview.NewApplication(),
		session:   s,
		queue:     q,
		executor:  executor,
		port:      port,
		startTime: time.Now(),
		stop:      make(chan struct{}),
	}

	t.setupUI()
	return t
}

func (t *TViewApp) setupUI() {
	t.printersList = tview.NewList()
	t.printersList.SetBorder(true)
	t.printersList.SetTitle("Printers (Enter to connect)")
	t.printersList.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		if index < len(t.listed) {
			t.connect(t.listed[index])
		}
	})

	t.queueTable = tview.NewTable()
	t.queueTable.SetBorder(true)
	t.queueTable.SetTitle("Print Queue")

	t.statusBox = tview.NewTextView()
	t.statusBox.SetBorder(true)
	t.statusBox.SetTitle("Status")
	t.statusBox.SetDynamicColors(true)

	t.logsArea = tview.NewTextView()
	t.logsArea.SetBorder(true)
	t.logsArea.SetTitle("Logs")
	t.logsArea.SetDynamicColors(true)
	t.logsArea.SetScrollable(true)
	t.logsArea.SetMaxLines(maxLogLines)
	t.logsArea.ScrollToEnd()
	t.logsArea.SetChangedFunc(func() {
		t.App.Draw()
	})

	t.commandInput = tview.NewInputField().
		SetLabel("> ").
		SetFieldWidth(0).
		SetPlaceholder("Type a command (e.g., 'help')").
		SetDoneFunc(func(key tcell.Key) {
			if key == tcell.KeyEnter {
				t.executeCommand(t.commandInput.GetText())
				t.commandInput.SetText("")
			}
		})

	topRow := tview.NewFlex().
		AddItem(t.printersList, 0, 1, false).
		AddItem(t.queueTable, 0, 1, false).
		AddItem(t.statusBox, 0, 1, false)

	bottom := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(t.logsArea, 0, 3, false).
		AddItem(t.commandInput, 1, 0, true)

	t.flex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 1, false).
		AddItem(bottom, 0, 1, true)

	t.App.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if t.commandInput.HasFocus() {
			if event.Key() == tcell.KeyEsc {
				t.App.SetFocus(t.printersList)
				return nil
			}
			return event
		}

		switch event.Key() {
		case tcell.KeyCtrlC, tcell.KeyEsc:
			t.App.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case ':':
				t.App.SetFocus(t.commandInput)
				return nil
			case 'q':
				t.App.Stop()
				return nil
			case 'd':
				t.runCommand("discover")
				return nil
			case 'x':
				t.runCommand("disconnect")
				return nil
			}
		}
		return event
	})

	t.App.SetRoot(t.flex, true)
}

// Run starts the TUI and blocks until it is stopped
func (t *TViewApp) Run() error {
	t.refreshAll()

	events, unsubscribe := t.session.Subscribe()
	defer unsubscribe()
	go t.watchEvents(events)
	go t.refreshTicker()
	defer t.Stop()

	t.AddLog("Bill printer console ready. Press ':' for commands, 'q' to quit.", "info")
	return t.App.Run()
}

// Stop ends background refreshes and the application
func (t *TViewApp) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
		t.App.Stop()
	})
}

func (t *TViewApp) refreshTicker() {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.App.QueueUpdateDraw(t.refreshAll)
		}
	}
}

func (t *TViewApp) watchEvents(events <-chan session.Event) {
	for ev := range events {
		switch ev.Type {
		case session.EventNotice:
			t.AddLog(fmt.Sprintf("%s: %s", ev.Notice.Title, ev.Notice.Message), noticeLevel(ev.Notice.Level))
		case session.EventDeviceAdded:
			t.AddLog("Printer found: "+deviceLabel(*ev.Device), "info")
		case session.EventDeviceRemoved:
			t.AddLog("Printer gone: "+deviceLabel(*ev.Device), "warning")
		}
		t.App.QueueUpdateDraw(t.refreshAll)
	}
}

func (t *TViewApp) refreshAll() {
	t.refreshPrinters()
	t.refreshQueue()
	t.refreshStatus()
}

func (t *TViewApp) refreshPrinters() {
	current := t.printersList.GetCurrentItem()
	t.printersList.Clear()

	t.listed = t.session.Devices()
	if len(t.listed) == 0 {
		t.printersList.AddItem("No printers discovered", "press 'd' or run 'discover'", 0, nil)
		return
	}

	active, hasActive := t.session.Active()
	def, hasDefault := t.session.Default()
	for _, d := range t.listed {
		marker := "⚪"
		switch {
		case hasActive && active.Same(d):
			marker = "🟢"
		case hasDefault && def.Same(d):
			marker = "⭐"
		}
		details := fmt.Sprintf("%s • %s", strings.ToUpper(d.Kind()), d.ID())
		t.printersList.AddItem(fmt.Sprintf("%s %s", marker, tview.Escape(d.DisplayName())), details, 0, nil)
	}
	if current < len(t.listed) {
		t.printersList.SetCurrentItem(current)
	}
}

func (t *TViewApp) refreshQueue() {
	t.queueTable.Clear()

	headers := []string{"Status", "Job", "Attempts", "Age"}
	for col, h := range headers {
		t.queueTable.SetCell(0, col, tview.NewTableCell(h).SetAlign(tview.AlignCenter).SetSelectable(false))
	}

	jobs := t.queue.Jobs()
	counts := make(map[session.JobStatus]int)
	for i, job := range jobs {
		row := i + 1
		counts[job.Status]++

		t.queueTable.SetCell(row, 0, tview.NewTableCell(statusIcon(job.Status)+" "+string(job.Status)))
		t.queueTable.SetCell(row, 1, tview.NewTableCell(shortID(job.ID)))
		t.queueTable.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%d", job.Attempts)))
		t.queueTable.SetCell(row, 3, tview.NewTableCell(time.Since(job.CreatedAt).Truncate(time.Second).String()))
	}

	if len(jobs) > 0 {
		summary := fmt.Sprintf("%d queued, %d printing, %d done, %d failed",
			counts[session.JobQueued], counts[session.JobPrinting], counts[session.JobCompleted], counts[session.JobFailed])
		t.queueTable.SetCell(len(jobs)+1, 0, tview.NewTableCell(summary).SetSelectable(false))
	}
}

func (t *TViewApp) refreshStatus() {
	t.statusBox.SetText(statusText(t.session.State(), t.session, time.Since(t.startTime), t.port, len(t.queue.Jobs())))
}

func statusText(st session.State, s *session.Session, uptime time.Duration, port string, jobs int) string {
	var b strings.Builder

	switch st.Status {
	case session.StatusConnected:
		fmt.Fprintf(&b, "[green]🟢 Connected[white] to %s\n", tview.Escape(st.Device.DisplayName()))
	case session.StatusConnecting:
		fmt.Fprintf(&b, "[yellow]🟡 Connecting[white] to %s\n", tview.Escape(st.Device.DisplayName()))
	case session.StatusDiscovering:
		b.WriteString("[yellow]🔍 Discovering[white]\n")
	default:
		b.WriteString("[red]🔴 Disconnected[white]\n")
		if st.Reason != "" {
			fmt.Fprintf(&b, "Last error: %s\n", tview.Escape(st.Reason))
		}
	}

	if def, ok := s.Default(); ok {
		fmt.Fprintf(&b, "Default: %s\n", tview.Escape(def.DisplayName()))
	}
	fmt.Fprintf(&b, "\nUptime: %dh %dm\nAPI: :%s\nJobs: %d total",
		int(uptime.Hours()), int(uptime.Minutes())%60, port, jobs)
	return b.String()
}

// executeCommand handles console-only commands and hands the rest to the
// executor off the UI goroutine
func (t *TViewApp) executeCommand(cmd string) {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return
	}

	switch strings.ToLower(cmd) {
	case "quit", "exit":
		t.App.Stop()
		return
	case "clear":
		t.logsArea.Clear()
		return
	case "refresh":
		t.refreshAll()
		return
	}

	t.runCommand(cmd)
}

func (t *TViewApp) runCommand(cmd string) {
	t.AddLog(cmd, "command")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		result := t.executor.Execute(ctx, cmd)
		for _, line := range resultLines(result) {
			level := "info"
			if !result.Success {
				level = "error"
			}
			t.AddLog(line, level)
		}
		t.App.QueueUpdateDraw(t.refreshAll)
	}()
}

func (t *TViewApp) connect(d registry.Device) {
	t.runCommand("connect " + quoteArg(d.ID()))
}

func quoteArg(s string) string {
	if strings.ContainsAny(s, " \t") {
		return `"` + s + `"`
	}
	return s
}

// resultLines turns a command result into log lines
func resultLines(r *command.Result) []string {
	if !r.Success {
		lines := []string{}
		if r.Message != "" {
			lines = append(lines, r.Message)
		}
		return append(lines, r.Error)
	}

	lines := strings.Split(strings.TrimRight(r.Message, "\n"), "\n")
	if devices, ok := r.Data["devices"].([]map[string]any); ok {
		for _, d := range devices {
			lines = append(lines, fmt.Sprintf("  %v  %v (%v)", d["id"], d["name"], d["kind"]))
		}
	}
	if jobs, ok := r.Data["jobs"].([]map[string]any); ok {
		for _, j := range jobs {
			lines = append(lines, fmt.Sprintf("  %v  %v", j["id"], j["status"]))
		}
	}
	return lines
}

// AddLog appends a line to the logs panel. It is safe to call from any
// goroutine.
func (t *TViewApp) AddLog(message string, level string) {
	var color, icon string

	switch level {
	case "error":
		color, icon = "[red]", "❌"
	case "warning":
		color, icon = "[yellow]", "⚠️"
	case "command":
		color, icon = "[cyan]", ">"
	default:
		color, icon = "[white]", "ℹ️"
	}

	entry := fmt.Sprintf("%s[%s] %s %s[white]\n", color, time.Now().Format("15:04:05"), icon, tview.Escape(message))

	t.logMu.Lock()
	defer t.logMu.Unlock()
	fmt.Fprint(t.logsArea, entry)
}

func noticeLevel(l session.Level) string {
	if l == session.LevelError {
		return "error"
	}
	return "info"
}

func deviceLabel(d registry.Device) string {
	return fmt.Sprintf("%s (%s)", d.DisplayName(), d.ID())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func statusIcon(status session.JobStatus) string {
	switch status {
	case session.JobQueued:
		return "⏳"
	case session.JobPrinting:
		return "🟡"
	case session.JobCompleted:
		return "✅"
	case session.JobFailed:
		return "❌"
	default:
		return "⚪"
	}
}

// LogWriter creates an io.Writer that writes to the logs panel
func (t *TViewApp) LogWriter() io.Writer {
	return &tviewLogWriter{app: t}
}

type tviewLogWriter struct {
	app *TViewApp
}

func (w *tviewLogWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(strings.TrimSpace(string(p)), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			w.app.AddLog(line, levelOf(line))
		}
	}
	return len(p), nil
}

// levelOf maps a logfmt line from the structured logger to a panel level
func levelOf(line string) string {
	switch {
	case strings.Contains(line, "ERRO"), strings.Contains(line, "FATA"):
		return "error"
	case strings.Contains(line, "WARN"):
		return "warning"
	default:
		return "info"
	}
}
