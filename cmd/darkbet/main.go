// Command darkbet is the command-line client for the darkbet API.
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
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"darkbet-backend/internal/api"
	"darkbet-backend/internal/auth"
	"darkbet-backend/internal/client"
	"darkbet-backend/internal/engine"
	"darkbet-backend/internal/market"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var errUsage = errors.New("usage")

func main() {
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type command struct {
	name    string
	summary string
	signed  bool
	stream  bool // runs until interrupted instead of under --timeout
	run     func(ctx context.Context, env *cliEnv, args []string) (any, error)
}

var commands = []command{
	{"create-market", "open a new market", true, false, createMarket},
	{"commit-bet", "escrow a stake behind a commitment hash", true, false, commitBet},
	{"reveal-bet", "reveal a committed bet", true, false, revealBet},
	{"resolve-market", "settle a market outcome (resolver only)", true, false, resolveMarket},
	{"claim-winnings", "collect the payout of a winning bet", true, false, claimWinnings},
	{"claim-refund", "recover a stake from a cancelled, undecided or unrevealed position", true, false, claimRefund},
	{"cancel-market", "cancel a market (creator or owner)", true, false, cancelMarket},
	{"deposit", "credit the vault balance of the signer", true, false, deposit},
	{"get-market", "show one market", false, false, getMarket},
	{"make-commit", "compute a commitment hash and salt for the signer", false, false, makeCommit},
	{"watch", "print protocol events as they happen", false, true, watch},
}

// cliEnv carries the global settings shared by subcommands
type cliEnv struct {
	api    string
	signer *auth.Signer
	client *client.Client
	stdout io.Writer
	stderr io.Writer
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("darkbet", flag.ContinueOnError)
	global.SetOutput(stderr)
	apiURL := global.String("api", envOr("DARKBET_API_URL", "http://localhost:8080"), "darkbet API base URL")
	key := global.String("key", os.Getenv("PRIVATE_KEY"), "hex private key used to sign requests")
	timeout := global.Duration("timeout", 30*time.Second, "request timeout")
	global.Usage = func() { usage(global) }

	if err := global.Parse(args); err != nil {
		return exitUsage
	}
	if global.NArg() == 0 {
		usage(global)
		return exitUsage
	}

	name, rest := global.Arg(0), global.Args()[1:]
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		usage(global)
		return exitUsage
	}

	env := &cliEnv{api: *apiURL, stdout: stdout, stderr: stderr}
	if *key != "" {
		signer, err := auth.NewSigner(*key)
		if err != nil {
			fmt.Fprintf(stderr, "invalid --key: %v\n", err)
			return exitUsage
		}
		env.signer = signer
	} else if cmd.signed {
		fmt.Fprintf(stderr, "%s needs a signing key: pass --key or set PRIVATE_KEY\n", name)
		return exitUsage
	}
	env.client = client.New(*apiURL, env.signer, *timeout)

	var ctx context.Context
	var cancel context.CancelFunc
	if cmd.stream {
		ctx, cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	} else {
		ctx, cancel = context.WithTimeout(context.Background(), *timeout)
	}
	defer cancel()

	out, err := cmd.run(ctx, env, rest)
	switch {
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return exitUsage
	case err != nil:
		writeFailure(stderr, err)
		return exitError
	case out == nil:
		return exitOK
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stderr, "write output: %v\n", err)
		return exitError
	}
	return exitOK
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "usage: darkbet [--api URL] [--key HEX] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-16s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "global flags:")
	fs.PrintDefaults()
}

// writeFailure prints err as the API's {"kind","error"} body
func writeFailure(w io.Writer, err error) {
	kind := market.KindOf(err)
	msg := err.Error()
	if kind != market.KindInternal {
		msg = market.Message(err)
	}
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Kind: kind, Error: msg})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// newFlags builds a subcommand flag set; parse errors are usage errors
func newFlags(env *cliEnv, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	return fs
}

func parse(fs *flag.FlagSet, args []string, required ...string) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	for _, name := range required {
		if !set[name] {
			fmt.Fprintf(fs.Output(), "%s: --%s is required\n", fs.Name(), name)
			fs.Usage()
			return errUsage
		}
	}
	return nil
}

// parseExpiry accepts RFC3339 or a relative "+duration"
func parseExpiry(raw string, now time.Time) (time.Time, error) {
	if strings.HasPrefix(raw, "+") {
		d, err := time.ParseDuration(raw[1:])
		if err != nil {
			return time.Time{}, market.Errorf(market.KindInvalidInput, "invalid --expires-at %q", raw)
		}
		return now.Add(d), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, market.Errorf(market.KindInvalidInput, "invalid --expires-at %q, use RFC3339 or +duration", raw)
	}
	return t, nil
}

func createMarket(ctx context.Context, env *cliEnv, args []string) (any, error) {
	fs := newFlags(env, "create-market")
	title := fs.String("title", "", "market question")
	description := fs.String("description", "", "resolution criteria")
	expiresAt := fs.String("expires-at", "", "expiry, RFC3339 or +duration (e.g. +48h)")
	category := fs.String("category", "general", "category name or code")
	if err := parse(fs, args, "title", "description", "expires-at"); err != nil {
		return nil, err
	}
	expiry, err := parseExpiry(*expiresAt, time.Now())
	if err != nil {
		return nil, err
	}
	return env.client.CreateMarket(ctx, *title, *description, *category, expiry)
}

func commitBet(ctx context.Context, env *cliEnv, args []string) (any, error) {
	fs := newFlags(env, "commit-bet")
	id := fs.Uint64("market-id", 0, "market id")
	hash := fs.String("commit-hash", "", "0x-prefixed commitment hash (see make-commit)")
	amount := fs.String("amount", "", "stake in ether")
	if err := parse(fs, args, "market-id", "commit-hash", "amount"); err != nil {
		return nil, err
	}
	return env.client.Commit(ctx, *id, *hash, *amount)
}

func revealBet(ctx context.Context, env *cliEnv, args []string) (any, error) {
	fs := newFlags(env, "reveal-bet")
	id := fs.Uint64("market-id", 0, "market id")
	outcome := fs.String("outcome", "", "yes or no")
	salt := fs.String("salt", "", "0x-prefixed 32 byte salt used for the commitment")
	if err := parse(fs, args, "market-id", "outcome", "salt"); err != nil {
		return nil, err
	}
	o, err := api.ParseOutcome(*outcome)
	if err != nil {
		return nil, err
	}
	return env.client.Reveal(ctx, *id, o, *salt)
}

func resolveMarket(ctx context.Context, env *cliEnv, args []string) (any, error) {
	fs := newFlags(env, "resolve-market")
	id := fs.Uint64("market-id", 0, "market id")
	outcome := fs.String("outcome", "", "yes, no or undecided")
	reasoning := fs.String("reasoning", "", "explanation recorded with the resolution")
	if err := parse(fs, args, "market-id", "outcome"); err != nil {
		return nil, err
	}
	return env.client.Resolve(ctx, *id, *outcome, *reasoning)
}

func claimWinnings(ctx context.Context, env *cliEnv, args []string) (any, error) {
	fs := newFlags(env, "claim-winnings")
	id := fs.Uint64("market-id", 0, "market id")
	if err := parse(fs, args, "market-id"); err != nil {
		return nil, err
	}
	return env.client.Claim(ctx, *id)
}

func claimRefund(ctx context.Context, env *cliEnv, args []string) (any, error) {
	fs := newFlags(env, "claim-refund")
	id := fs.Uint64("market-id", 0, "market id")
	if err := parse(fs, args, "market-id"); err != nil {
		return nil, err
	}
	return env.client.Refund(ctx, *id)
}

func cancelMarket(ctx context.Context, env *cliEnv, args []string) (any, error) {
	fs := newFlags(env, "cancel-market")
	id := fs.Uint64("market-id", 0, "market id")
	if err := parse(fs, args, "market-id"); err != nil {
		return nil, err
	}
	return env.client.Cancel(ctx, *id)
}

func deposit(ctx context.Context, env *cliEnv, args []string) (any, error) {
	fs := newFlags(env, "deposit")
	amount := fs.String("amount", "", "amount in ether")
	if err := parse(fs, args, "amount"); err != nil {
		return nil, err
	}
	return env.client.Deposit(ctx, *amount)
}

func getMarket(ctx context.Context, env *cliEnv, args []string) (any, error) {
	fs := newFlags(env, "get-market")
	id := fs.Uint64("market-id", 0, "market id")
	if err := parse(fs, args, "market-id"); err != nil {
		return nil, err
	}
	return env.client.GetMarket(ctx, *id)
}

// commitOutput is everything needed to commit now and reveal later
type commitOutput struct {
	Address    string `json:"address"`
	Outcome    string `json:"outcome"`
	Salt       string `json:"salt"`
	CommitHash string `json:"commit_hash"`
}

func makeCommit(_ context.Context, env *cliEnv, args []string) (any, error) {
	fs := newFlags(env, "make-commit")
	outcome := fs.String("outcome", "", "yes or no")
	saltHex := fs.String("salt", "", "0x-prefixed 32 byte salt; random when omitted")
	address := fs.String("address", "", "bettor address; defaults to the --key address")
	if err := parse(fs, args, "outcome"); err != nil {
		return nil, err
	}
	o, err := api.ParseOutcome(*outcome)
	if err != nil {
		return nil, err
	}

	var user common.Address
	switch {
	case *address != "":
		if !common.IsHexAddress(*address) {
			return nil, market.Errorf(market.KindInvalidInput, "invalid --address %q", *address)
		}
		user = common.HexToAddress(*address)
	case env.signer != nil:
		user = env.signer.Address()
	default:
		fmt.Fprintln(env.stderr, "make-commit: pass --address or a signing key")
		return nil, errUsage
	}

	var salt engine.Salt
	if *saltHex != "" {
		if salt, err = engine.ParseSalt(*saltHex); err != nil {
			return nil, err
		}
	} else if salt, err = engine.NewSalt(); err != nil {
		return nil, err
	}

	word := "no"
	if o {
		word = "yes"
	}
	return commitOutput{
		Address:    user.Hex(),
		Outcome:    word,
		Salt:       salt.Hex(),
		CommitHash: engine.CommitHash(o, salt, user).Hex(),
	}, nil
}

// watch streams events as JSON lines until interrupted or --count is reached
func watch(ctx context.Context, env *cliEnv, args []string) (any, error) {
	fs := newFlags(env, "watch")
	id := fs.Uint64("market-id", 0, "only events of this market; 0 follows all")
	count := fs.Int("count", 0, "exit after this many events; 0 runs until interrupted")
	if err := parse(fs, args); err != nil {
		return nil, err
	}

	stream, err := env.client.Subscribe(ctx, *id)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	enc := json.NewEncoder(env.stdout)
	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case ev, ok := <-stream.Events():
			if !ok {
				return nil, stream.Err()
			}
			if err := enc.Encode(ev); err != nil {
				return nil, err
			}
			seen++
			if *count > 0 && seen >= *count {
				return nil, nil
			}
		}
	}
}
