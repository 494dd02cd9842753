package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/thereceipt/bill-printer/internal/registry"
	"github.com/thereceipt/bill-printer/internal/renderer"
	"github.com/thereceipt/bill-printer/internal/session"
	"github.com/thereceipt/bill-printer/pkg/receiptformat"
)

// handleStatus reports the connection state
// Usage: status
func (e *Executor) handleStatus() *Result {
	st := e.session.State()
	data := map[string]any{
		"status":      st.Status.String(),
		"discovering": st.Discovering,
	}
	if st.Device != nil {
		data["device"] = deviceData(*st.Device)
	}
	if def, ok := e.session.Default(); ok {
		data["default"] = deviceData(def)
	}
	if st.Reason != "" {
		data["reason"] = st.Reason
	}

	msg := "Status: " + st.Status.String()
	if st.Device != nil {
		msg = fmt.Sprintf("%s (%s)", msg, st.Device.DisplayName())
	}
	return &Result{Success: true, Message: msg, Data: data}
}

// handleDevices lists the devices found by the last discovery
// Usage: devices
func (e *Executor) handleDevices() *Result {
	return devicesResult(e.session.Devices(), "Found %d device(s)")
}

// handleDiscover runs a discovery pass
// Usage: discover
func (e *Executor) handleDiscover(ctx context.Context) *Result {
	devices, err := e.session.StartDiscovery(ctx)
	if err != nil {
		if errors.Is(err, session.ErrDiscoverySuperseded) {
			return failure("discovery superseded by a newer pass")
		}
		return failure("Failed to discover devices. Ensure Bluetooth is enabled. (%v)", err)
	}
	return devicesResult(devices, "Discovered %d device(s)")
}

func devicesResult(devices []registry.Device, format string) *Result {
	list := make([]map[string]any, len(devices))
	for i, d := range devices {
		list[i] = deviceData(d)
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf(format, len(devices)),
		Data:    map[string]any{"devices": list},
	}
}

func deviceData(d registry.Device) map[string]any {
	data := map[string]any{
		"id":   d.ID(),
		"name": d.DisplayName(),
		"kind": d.Kind(),
	}
	if d.MacAddress != "" {
		data["macAddress"] = d.MacAddress
	}
	if d.IP != "" {
		data["ip"] = d.IP
		data["port"] = d.Port
	}
	return data
}

// handleConnect connects to a discovered device, or to a network address
// Usage: connect <device-id | host:port>
func (e *Executor) handleConnect(ctx context.Context, args []string) *Result {
	if len(args) < 1 {
		return failure("usage: connect <device-id | host:port>")
	}

	device, ok := e.session.Device(args[0])
	if !ok {
		d, err := parseNetworkAddress(args[0])
		if err != nil {
			return failure("device not found: %s. Run 'discover' first", args[0])
		}
		device = d
	}

	notice, err := e.session.Connect(ctx, device)
	if err != nil {
		if errors.Is(err, session.ErrConnectSuperseded) {
			return failure("connect to %s superseded by a newer request", device.DisplayName())
		}
		return &Result{Success: false, Message: notice.Message, Error: err.Error()}
	}
	return &Result{
		Success: true,
		Message: notice.Message,
		Data:    map[string]any{"device": deviceData(device), "level": string(notice.Level)},
	}
}

// parseNetworkAddress accepts host:port for printers outside the device list
func parseNetworkAddress(addr string) (registry.Device, error) {
	host, portStr, found := strings.Cut(addr, ":")
	if !found || host == "" || strings.Count(addr, ":") != 1 {
		return registry.Device{}, fmt.Errorf("not a host:port address: %s", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return registry.Device{}, fmt.Errorf("invalid port: %s", portStr)
	}
	return registry.Device{DeviceName: addr, IP: host, Port: port}, nil
}

// handleDisconnect drops the active printer
// Usage: disconnect
func (e *Executor) handleDisconnect() *Result {
	e.session.Disconnect()
	return &Result{Success: true, Message: "Disconnected"}
}

// handlePreview renders a receipt without printing it
// Usage: preview <amount...> | preview -f <path>
func (e *Executor) handlePreview(args []string) *Result {
	job, err := e.buildJob(args)
	if err != nil {
		return failure("%v", err)
	}
	payload, err := e.composer.Compose(job)
	if err != nil {
		return failure("failed to render receipt: %v", err)
	}
	return &Result{
		Success: true,
		Message: payload,
		Data: map[string]any{
			"payload": payload,
			"total":   renderer.FormatAmount(job.Total()),
			"items":   job.ItemCount(),
		},
	}
}

// handlePrint renders a receipt and queues it
// Usage: print <amount...> | print -f <path>
func (e *Executor) handlePrint(args []string) *Result {
	job, err := e.buildJob(args)
	if err != nil {
		return failure("%v", err)
	}
	payload, err := e.composer.Compose(job)
	if err != nil {
		return failure("failed to render receipt: %v", err)
	}

	jobID := e.queue.Enqueue(payload)
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Print job queued: %s", jobID),
		Data: map[string]any{
			"job_id": jobID,
			"total":  renderer.FormatAmount(job.Total()),
		},
	}
}

// handleSave writes a receipt job to a file that print -f can load later
// Usage: save <path> <amount...>
func (e *Executor) handleSave(args []string) *Result {
	if len(args) < 2 {
		return failure("usage: save <path> <amount...>")
	}
	job, err := e.buildJob(args[1:])
	if err != nil {
		return failure("%v", err)
	}
	if err := job.SaveToFile(args[0]); err != nil {
		return failure("failed to save job: %v", err)
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Saved %d item(s) to %s", job.ItemCount(), args[0]),
		Data: map[string]any{
			"path":  args[0],
			"total": renderer.FormatAmount(job.Total()),
		},
	}
}

// buildJob reads amounts from args, or loads a saved job with -f <path>
func (e *Executor) buildJob(args []string) (*receiptformat.Job, error) {
	if len(args) == 0 {
		return nil, errors.New("usage: print|preview <amount...> | -f <path>")
	}
	if args[0] == "-f" {
		if len(args) != 2 {
			return nil, errors.New("usage: print|preview -f <path>")
		}
		job, err := receiptformat.ParseFile(args[1])
		if err != nil {
			return nil, err
		}
		if job.StoreName == "" {
			job.StoreName = e.storeName
		}
		if job.Footer == "" {
			job.Footer = e.footer
		}
		return job, nil
	}
	items := make([]float64, 0, len(args))
	for _, arg := range args {
		for _, field := range strings.Split(arg, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid amount: %s", field)
			}
			items = append(items, v)
		}
	}

	job := &receiptformat.Job{
		Version:   receiptformat.Version,
		Items:     items,
		StoreName: e.storeName,
		Footer:    e.footer,
	}
	if err := receiptformat.ValidateJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

// handleJobs lists queued and finished print jobs
// Usage: jobs
func (e *Executor) handleJobs() *Result {
	jobs := e.queue.Jobs()
	list := make([]map[string]any, len(jobs))
	for i, job := range jobs {
		list[i] = jobData(job)
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Found %d job(s)", len(jobs)),
		Data:    map[string]any{"jobs": list},
	}
}

// handleJob shows one job, or clears finished jobs
// Usage: job <id> | job clear
func (e *Executor) handleJob(args []string) *Result {
	if len(args) < 1 {
		return failure("usage: job <id> | job clear")
	}
	if args[0] == "clear" {
		n := e.queue.ClearCompleted()
		return &Result{Success: true, Message: fmt.Sprintf("Cleared %d completed job(s)", n)}
	}

	job, ok := e.queue.Job(args[0])
	if !ok {
		return failure("job not found: %s", args[0])
	}
	return &Result{
		Success: true,
		Message: fmt.Sprintf("Job %s: %s", job.ID, job.Status),
		Data:    jobData(job),
	}
}

func jobData(job session.PrintJob) map[string]any {
	data := map[string]any{
		"id":         job.ID,
		"status":     string(job.Status),
		"attempts":   job.Attempts,
		"created_at": job.CreatedAt,
	}
	if job.Error != "" {
		data["error"] = job.Error
	}
	return data
}

// handleHelp handles help command
func (e *Executor) handleHelp() *Result {
	helpText := `Available Commands:

  status
    Show the connection state and the default printer

  devices
    List the printers found by the last discovery

  discover
    Scan for paired Bluetooth and network printers

  connect <device-id | host:port>
    Connect to a printer; it becomes the default printer

  disconnect
    Drop the active printer (the default is kept)

  preview <amount...> | preview -f <path>
    Render a receipt for the given amounts without printing

  print <amount...> | print -f <path>
    Render a receipt and queue it for printing

  save <path> <amount...>
    Write a receipt job file for print -f

  jobs
    List print jobs

  job <id>
    Show one print job

  job clear
    Remove completed jobs

  help
    Show this help message

Examples:
  connect AA:BB:CC:DD:EE:FF
  connect 192.168.0.100:9100
  print 120 45.5 300
  print 10,20,30
`

	return &Result{
		Success: true,
		Message: helpText,
	}
}
