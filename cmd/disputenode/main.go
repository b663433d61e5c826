// disputenode runs the dispute resolution contract against a local data
// directory and serves validator proposals to peers.
//
//	disputenode -config node.json create alice bob
//	disputenode -config node.json evidence 0 plaintiff "invoice attached"
//	disputenode -config node.json resolve 0
//	disputenode -config node.json serve
//	disputenode verify data/a/cases data/b/cases
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/greyw0rks/genlayer-dispute-resolution/internal/config"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/contract"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/log"
)

var errUsage = errors.New("usage")

const usage = `usage: disputenode [flags] <command> [args]

commands:
  init <path>                      write the default configuration to path
  create <plaintiff> <defendant>   open a case and print its id
  evidence <id> <party> <text>     submit evidence for plaintiff or defendant
  resolve <id>                     run validator consensus and record the outcome
  get <id>                         print one case
  list                             print all cases
  count                            print the number of cases
  receipts                         print the commit receipts
  verify <dir> <dir>               compare two pebble replicas
  serve                            answer proposal requests from peers

flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("disputenode", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to the JSON configuration")
	overridePath := fs.String("override", "", "optional JSON file merged over -config")
	backend := fs.String("backend", "", "storage backend override: pebble, memory or postgres")
	policy := fs.String("policy", "", "resolution policy override: lenient or strict")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]

	if cmd == "init" {
		if len(rest) != 1 {
			fs.Usage()
			return errUsage
		}
		return config.Save(rest[0], config.Default())
	}

	cfg, _, err := config.Load(*configPath, *overridePath)
	if err != nil {
		return err
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}
	if *policy != "" {
		cfg.Consensus.Policy = *policy
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := initLogging(cfg, stderr); err != nil {
		return err
	}

	switch cmd {
	case "verify":
		if len(rest) != 2 {
			fs.Usage()
			return errUsage
		}
		return verify(rest[0], rest[1], stdout)
	case "serve":
		return serve(ctx, cfg)
	}

	n, err := openNode(ctx, cfg)
	if err != nil {
		return err
	}
	defer n.Close()

	return dispatch(ctx, n, cmd, rest, stdout, fs.Usage)
}

func dispatch(ctx context.Context, n *node, cmd string, args []string, stdout io.Writer, usage func()) error {
	want := map[string]int{
		"create": 2, "evidence": 3, "resolve": 1, "get": 1,
		"list": 0, "count": 0, "receipts": 0,
	}
	argc, ok := want[cmd]
	if !ok || len(args) != argc {
		usage()
		return errUsage
	}

	switch cmd {
	case "create":
		id, err := n.contract.CreateCase(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, id)
		return nil
	case "evidence":
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return n.contract.SubmitEvidence(id, args[1], args[2])
	case "resolve":
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := n.contract.ResolveCase(ctx, id); err != nil {
			return err
		}
		view, err := n.contract.GetCase(id)
		if err != nil {
			return err
		}
		return printJSON(stdout, view)
	case "get":
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		view, err := n.contract.GetCase(id)
		if err != nil {
			return err
		}
		return printJSON(stdout, view)
	case "list":
		list, err := n.contract.GetAllCases()
		if err != nil {
			return err
		}
		return printJSON(stdout, list)
	case "count":
		count, err := n.contract.GetCaseCount()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, count)
		return nil
	default:
		receipts, err := n.ledger.Receipts()
		if err != nil {
			return err
		}
		for _, r := range receipts {
			fmt.Fprintf(stdout, "%d\t%s\t%d\t%s\n", r.Seq, r.Method, r.CaseID, r.StateRoot)
		}
		return nil
	}
}

func initLogging(cfg config.Config, out io.Writer) error {
	level, err := log.ParseLogLevel(cfg.Node.LogLevel)
	if err != nil {
		return fmt.Errorf("node.log_level: %w", err)
	}
	format, err := log.ParseLoggerType(cfg.Node.LogFormat)
	if err != nil {
		return fmt.Errorf("node.log_format: %w", err)
	}
	log.Init(log.Options{LogLevel: level, Type: format, Output: out})
	return nil
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("case id %q: %w", s, contract.ErrNotFound)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
