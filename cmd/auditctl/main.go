// Command auditctl is the operator-facing client for the audit archive:
// one-shot query/delete/tail subcommands for scripting, and a "tui"
// subcommand that opens the interactive console (internal/tui).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/dbaudit/collector/internal/query"
	"github.com/dbaudit/collector/internal/tui"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "query":
		runQuery(os.Args[2:])
	case "delete":
		runDelete(os.Args[2:])
	case "tail":
		runTail(os.Args[2:])
	case "tui":
		runTUI(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: auditctl <command> [flags]

commands:
  query   list audit records in a time window
  delete  soft-delete audit records in a time window
  tail    stream newly appended records
  tui     open the interactive console`)
}

// backendFlags are the dir-vs-remote options shared by every subcommand,
// matching console.go's --remote/--api-key switch between a local and a
// network-backed backend.
type backendFlags struct {
	dir      string
	remote   string
	token    string
	insecure bool
}

func (f *backendFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.dir, "dir", "", "audit archive directory (local mode)")
	fs.StringVar(&f.remote, "remote", "", "queryapi base URL, e.g. https://host:8032 (remote mode)")
	fs.StringVar(&f.token, "token", "", "bearer token for remote mode")
	fs.BoolVar(&f.insecure, "insecure", false, "skip TLS verification in remote mode")
}

func (f *backendFlags) backend() (tui.Backend, error) {
	if f.remote != "" {
		return tui.NewRemoteBackend(f.remote, f.token, f.insecure), nil
	}
	if f.dir == "" {
		return nil, fmt.Errorf("either -dir or -remote is required")
	}
	return tui.NewLocalBackend(f.dir), nil
}

func parseWindowFlags(startStr, endStr string) (begin, end int64, err error) {
	now := time.Now().UTC()
	beginT := now.Add(-24 * time.Hour)
	endT := now
	if startStr != "" {
		beginT, err = time.Parse(time.RFC3339, startStr)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid -start: %w", err)
		}
	}
	if endStr != "" {
		endT, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid -end: %w", err)
		}
	}
	return beginT.Unix(), endT.Unix(), nil
}

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	var bf backendFlags
	bf.register(fs)
	start := fs.String("start", "", "window start, RFC3339 (default: 24h ago)")
	end := fs.String("end", "", "window end, RFC3339 (default: now)")
	asJSON := fs.Bool("json", false, "emit JSON instead of a table")
	fs.Parse(args)

	backend, err := bf.backend()
	fatalIf(err)
	begin, endTS, err := parseWindowFlags(*start, *end)
	fatalIf(err)

	rows, err := backend.Query(begin, endTS)
	fatalIf(err)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		fatalIf(enc.Encode(rows))
		return
	}
	printRows(rows)
}

func runDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	var bf backendFlags
	bf.register(fs)
	start := fs.String("start", "", "window start, RFC3339 (required)")
	end := fs.String("end", "", "window end, RFC3339 (required)")
	fs.Parse(args)

	if *start == "" || *end == "" {
		fmt.Fprintln(os.Stderr, "delete requires both -start and -end")
		os.Exit(1)
	}

	backend, err := bf.backend()
	fatalIf(err)
	begin, endTS, err := parseWindowFlags(*start, *end)
	fatalIf(err)

	n, err := backend.Delete(begin, endTS)
	fatalIf(err)
	fmt.Printf("deleted %d record(s)\n", n)
}

func runTail(args []string) {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	remote := fs.String("remote", "", "queryapi base URL, e.g. http://host:8032 (required)")
	token := fs.String("token", "", "bearer token")
	fs.Parse(args)

	if *remote == "" {
		fmt.Fprintln(os.Stderr, "tail requires -remote")
		os.Exit(1)
	}

	wsURL := strings.Replace(*remote, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1) + "/api/audit/tail"

	header := map[string][]string{}
	if *token != "" {
		header["Authorization"] = []string{"Bearer " + *token}
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	fatalIf(err)
	defer conn.Close()

	for {
		var row query.Row
		if err := conn.ReadJSON(&row); err != nil {
			fmt.Fprintln(os.Stderr, "tail connection closed:", err)
			return
		}
		printRows([]query.Row{row})
	}
}

func runTUI(args []string) {
	fs := flag.NewFlagSet("tui", flag.ExitOnError)
	var bf backendFlags
	bf.register(fs)
	fs.Parse(args)

	backend, err := bf.backend()
	fatalIf(err)

	p := tea.NewProgram(tui.NewModel(backend), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "error running console:", err)
		os.Exit(1)
	}
}

func printRows(rows []query.Row) {
	for _, r := range rows {
		fmt.Printf("%s  %-14s %-8s user=%-10s db=%-10s object=%s\n",
			time.Unix(r.Time, 0).UTC().Format(time.RFC3339), r.Type, r.Result, r.UserName, r.DatabaseName, r.ObjectName)
	}
}

func fatalIf(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
