// animica-consensus-cli is the conformance harness for the consensus
// core. It reads one JSON request from stdin, executes the named
// operation against a fresh dev-policy chain, writes one JSON response
// to stdout, and exits with the consensus category code:
//
//	0 accepted, 1 rejected-structural, 2 rejected-policy,
//	3 rejected-work.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	flags "github.com/jessevdk/go-flags"

	"animica.dev/core/node"
)

type options struct {
	LogFile  string `long:"logfile" description:"rotated debug log path (disabled when empty)"`
	LogLevel string `long:"loglevel" default:"info" description:"log level for the harness"`
	Config   string `long:"config" description:"optional node config YAML (chain id, verify workers); the dev policy is always used"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitStructural)
	}
	if err := initLogging(opts.LogFile, opts.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitStructural)
	}
	defer closeLogging()

	cfg := node.DefaultConfig()
	if opts.Config != "" {
		loaded, err := node.LoadConfig(opts.Config)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitStructural)
		}
		cfg = loaded
	}

	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResp(os.Stdout, Response{Ok: false, Err: fmt.Sprintf("bad request: %v", err)})
		os.Exit(exitStructural)
	}

	resp, code := run(cfg, &req)
	writeResp(os.Stdout, resp)
	os.Exit(code)
}

func writeResp(w io.Writer, resp Response) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(resp)
}
