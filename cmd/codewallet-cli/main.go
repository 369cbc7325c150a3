// codewallet-cli is a command-line front end for the coded-transfer wallet.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/Klingon-tech/codewallet/config"
	"github.com/Klingon-tech/codewallet/internal/app"
	"github.com/Klingon-tech/codewallet/internal/claims"
	"github.com/Klingon-tech/codewallet/internal/wallet"
	"github.com/Klingon-tech/codewallet/pkg/transfercode"
	"github.com/Klingon-tech/codewallet/pkg/types"
)

const version = "0.1.0"

// passphraseEnv lets scripts unlock the wallet without a prompt.
const passphraseEnv = "CODEWALLET_PASSPHRASE"

func main() {
	cfg, flags, err := config.Load(os.Args[1:])
	if err != nil {
		fatal("%v", err)
	}
	if flags.Version {
		fmt.Printf("codewallet-cli version %s\n", version)
		return
	}
	if flags.Help || len(flags.Args) == 0 {
		usage()
		return
	}

	cmd := flags.Args[0]
	cmdArgs := flags.Args[1:]

	// Offline commands need no passphrase.
	switch cmd {
	case "encode":
		cmdEncode(cmdArgs)
		return
	case "decode":
		cmdDecode(cmdArgs)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := openApp(ctx, cfg)
	defer a.Close()
	atExit(func() { a.Close() })

	switch cmd {
	case "account":
		cmdAccount(ctx, a, cmdArgs)
	case "send":
		cmdSend(ctx, a, cmdArgs)
	case "claim":
		cmdClaim(ctx, a, cmdArgs)
	case "cancel":
		cmdCancel(ctx, a, cmdArgs)
	case "claims":
		cmdClaims(ctx, a, cmdArgs)
	case "view":
		cmdView(ctx, a, cmdArgs)
	case "passphrase":
		cmdPassphrase(a)
	default:
		fatal("Unknown command: %s (run with --help)", cmd)
	}
}

func usage() {
	fmt.Print(config.Usage + `
Commands:
  account create [--name N]              Create an account from a new recovery phrase
  account import-phrase [--name N]       Import from a recovery phrase (prompted)
  account import-key [--name N]          Import from a private key (prompted)
  account list                           List accounts, * marks the active one
  account use <address>                  Switch the active account
  account rename <address> [--name N] [--emoji E]
  account export-phrase [address]        Show the recovery phrase
  account export-key [address]           Show the private key
  account delete <address> | --all       Delete one or every account

  send --asset A --amount N [--kind move|fa] [--symbol S] [--decimals D]
       [--code C] [--expires 72h]        Create a coded transfer
  claim <code> --asset A [--kind move|fa] Claim a transfer
  cancel <code> --asset A [--kind move|fa] Cancel an own transfer
  claims list [--refresh]                Pending claims and their state
  claims add <code>                      Track a code received from someone
  claims forget <code>                   Stop tracking a code
  claims count                           Number of tracked codes, all networks
  view <code>                            Look a code up on chain

  encode <code> <sender>                 Encode a code as it goes on chain
  decode <hex> <sender>                  Decode an on-chain code
  passphrase                             Change the wallet passphrase

The passphrase is prompted for, or read from ` + passphraseEnv + `.
`)
}

func openApp(ctx context.Context, cfg *config.Config) *app.App {
	pass, err := passphrase("Wallet passphrase: ")
	if err != nil {
		fatal("read passphrase: %v", err)
	}
	a, err := app.New(cfg, pass)
	if err != nil {
		fatalErr(err)
	}
	if _, err := a.Start(ctx); err != nil {
		// The vault is usable for repair even when the active account is broken.
		fmt.Fprintf(os.Stderr, "Warning: %s\n", userMessage(err))
	}
	return a
}

// ── account ─────────────────────────────────────────────────────────────

func cmdAccount(ctx context.Context, a *app.App, args []string) {
	const accountUsage = "Usage: codewallet-cli account <create|import-phrase|import-key|list|use|rename|export-phrase|export-key|delete>"
	if len(args) < 1 {
		fatal("%s", accountUsage)
	}
	v := a.Vault()
	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("account create", flag.ExitOnError)
		name := fs.String("name", "", "Account name")
		fs.Parse(args[1:])
		addr, mnemonic, err := v.CreateAccount(ctx, *name)
		if err != nil {
			fatalErr(err)
		}
		fmt.Println("Recovery phrase (write this down!):")
		fmt.Printf("  %s\n\n", mnemonic)
		fmt.Printf("Address: %s\n", addr)

	case "import-phrase":
		fs := flag.NewFlagSet("account import-phrase", flag.ExitOnError)
		name := fs.String("name", "", "Account name")
		fs.Parse(args[1:])
		phrase, err := readLine("Recovery phrase: ")
		if err != nil {
			fatal("read phrase: %v", err)
		}
		addr, err := v.ImportFromSeedphrase(ctx, phrase, *name)
		if err != nil {
			fatalErr(err)
		}
		fmt.Printf("Imported: %s\n", addr)

	case "import-key":
		fs := flag.NewFlagSet("account import-key", flag.ExitOnError)
		name := fs.String("name", "", "Account name")
		fs.Parse(args[1:])
		key, err := readPassword("Private key: ")
		if err != nil {
			fatal("read key: %v", err)
		}
		addr, err := v.ImportFromPrivateKey(ctx, strings.TrimSpace(string(key)), *name)
		if err != nil {
			fatalErr(err)
		}
		fmt.Printf("Imported: %s\n", addr)

	case "list":
		active := v.Active()
		for _, id := range v.Accounts() {
			mark := " "
			if active != nil && active.Address == id.Address {
				mark = "*"
			}
			fmt.Printf("%s %s  %-16s %s %s\n", mark, id.Address, id.Name, id.Emoji, id.Origin)
		}

	case "use":
		addr := addressArg(args[1:], "account use <address>")
		acct, err := a.SwitchActive(ctx, addr)
		if err != nil {
			fatalErr(err)
		}
		fmt.Printf("Active: %s\n", acct.Address)

	case "rename":
		addr := addressArg(args[1:], "account rename <address> [--name N] [--emoji E]")
		fs := flag.NewFlagSet("account rename", flag.ExitOnError)
		name := fs.String("name", "", "New name")
		emoji := fs.String("emoji", "", "New emoji")
		fs.Parse(args[2:])
		var upd wallet.MetadataUpdate
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "name":
				upd.Name = name
			case "emoji":
				upd.Emoji = emoji
			}
		})
		if err := v.UpdateMetadata(ctx, addr, upd); err != nil {
			fatalErr(err)
		}

	case "export-phrase":
		phrase, ok, err := v.ExportMnemonic(ctx, optionalAddress(args[1:]))
		if err != nil {
			fatalErr(err)
		}
		if !ok {
			fatal("this account was imported from a private key and has no recovery phrase")
		}
		fmt.Println(phrase)

	case "export-key":
		key, ok, err := v.ExportPrivateKey(ctx, optionalAddress(args[1:]))
		if err != nil {
			fatalErr(err)
		}
		if !ok {
			fatal("no private key available for this account")
		}
		fmt.Println(key)

	case "delete":
		if len(args) > 1 && args[1] == "--all" {
			if !confirm("Delete ALL accounts? Type yes: ") {
				return
			}
			if err := v.DeleteAll(ctx); err != nil {
				fatalErr(err)
			}
			fmt.Println("All accounts deleted.")
			return
		}
		addr := addressArg(args[1:], "account delete <address> | --all")
		if !confirm(fmt.Sprintf("Delete %s? Type yes: ", addr)) {
			return
		}
		if err := a.DeleteAccount(ctx, addr); err != nil {
			fatalErr(err)
		}
		fmt.Println("Account deleted.")

	default:
		fatal("Unknown account command: %s\n%s", args[0], accountUsage)
	}
}

// ── transfers ───────────────────────────────────────────────────────────

func cmdSend(ctx context.Context, a *app.App, args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	asset := fs.String("asset", "", "Coin type (move) or metadata address (fa)")
	amount := fs.String("amount", "", "Amount in base units")
	kind := fs.String("kind", string(transfercode.KindMove), "Transfer kind: move or fa")
	symbol := fs.String("symbol", "", "Token symbol for display")
	decimals := fs.Int("decimals", -1, "Token decimals for display")
	code := fs.String("code", "", "Claim code (random when empty)")
	expires := fs.Duration("expires", 0, "Time until the transfer expires (contract default when 0)")
	fs.Parse(args)
	if *asset == "" || *amount == "" {
		fatal("Usage: codewallet-cli send --asset <asset> --amount <base units> [--kind move|fa]")
	}

	t := app.Transfer{
		Code:        *code,
		Kind:        transfercode.Kind(*kind),
		Asset:       *asset,
		Amount:      *amount,
		TokenSymbol: *symbol,
		ExpiresIn:   *expires,
	}
	if *decimals >= 0 {
		t.Decimals = decimals
	}
	created, err := a.CreateCodedTransfer(ctx, t)
	if err != nil {
		fatalErr(err)
	}
	fmt.Printf("Transaction: %s\n", created.TransactionHash)
	fmt.Printf("Code:        %s\n", created.Code)
	if !created.Verified {
		fmt.Println("Note: the code could not be read back from the chain yet.")
	}
	if created.SaveErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: the code was not saved locally, keep it safe: %v\n", created.SaveErr)
	}
}

func transferFlags(name string, args []string) (string, transfercode.Kind, string) {
	if len(args) < 1 || strings.HasPrefix(args[0], "-") {
		fatal("Usage: codewallet-cli %s <code> --asset <asset> [--kind move|fa]", name)
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	asset := fs.String("asset", "", "Coin type (move) or metadata address (fa)")
	kind := fs.String("kind", string(transfercode.KindMove), "Transfer kind: move or fa")
	fs.Parse(args[1:])
	if *asset == "" {
		fatal("Usage: codewallet-cli %s <code> --asset <asset> [--kind move|fa]", name)
	}
	return args[0], transfercode.Kind(*kind), *asset
}

func cmdClaim(ctx context.Context, a *app.App, args []string) {
	code, kind, asset := transferFlags("claim", args)
	res, err := a.ClaimCodedTransfer(ctx, code, kind, asset)
	if err != nil {
		fatalErr(err)
	}
	fmt.Printf("Claimed. Transaction: %s\n", res.TransactionHash)
}

func cmdCancel(ctx context.Context, a *app.App, args []string) {
	code, kind, asset := transferFlags("cancel", args)
	res, err := a.CancelCodedTransfer(ctx, code, kind, asset)
	if err != nil {
		fatalErr(err)
	}
	fmt.Printf("Cancelled. Transaction: %s\n", res.TransactionHash)
}

// ── claims ──────────────────────────────────────────────────────────────

func cmdClaims(ctx context.Context, a *app.App, args []string) {
	const claimsUsage = "Usage: codewallet-cli claims <list|add|forget|count>"
	if len(args) < 1 {
		fatal("%s", claimsUsage)
	}
	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("claims list", flag.ExitOnError)
		refresh := fs.Bool("refresh", false, "Ignore cached results")
		fs.Parse(args[1:])
		views, err := a.PendingClaims(ctx, *refresh)
		if err != nil {
			fatalErr(err)
		}
		if len(views) == 0 {
			fmt.Println("No pending claims.")
			return
		}
		for _, v := range views {
			printView(v)
		}
	case "add":
		if len(args) < 2 {
			fatal("Usage: codewallet-cli claims add <code>")
		}
		if err := a.TrackCode(ctx, args[1]); err != nil {
			fatalErr(err)
		}
	case "forget":
		if len(args) < 2 {
			fatal("Usage: codewallet-cli claims forget <code>")
		}
		if err := a.ForgetCode(ctx, args[1]); err != nil {
			fatalErr(err)
		}
	case "count":
		n, err := a.PendingCount(ctx)
		if err != nil {
			fatalErr(err)
		}
		fmt.Println(n)
	default:
		fatal("Unknown claims command: %s\n%s", args[0], claimsUsage)
	}
}

func printView(v claims.View) {
	amount := v.DisplayAmount
	if v.ChainAmountDisplay != "" {
		amount = v.ChainAmountDisplay
	}
	line := fmt.Sprintf("%-12s %-11s %s %s", v.Code, v.Status, amount, v.TokenSymbol)
	if v.Expiration != nil {
		line += "  expires " + v.Expiration.Local().Format(time.DateTime)
	}
	if v.Status == claims.StatusUnknown && v.Err != nil {
		line += "  (" + userMessage(v.Err) + ")"
	}
	fmt.Println(line)
}

func cmdView(ctx context.Context, a *app.App, args []string) {
	if len(args) < 1 {
		fatal("Usage: codewallet-cli view <code>")
	}
	st, err := a.ViewCode(ctx, args[0])
	if err != nil {
		fatalErr(err)
	}
	fmt.Printf("Kind:       %s\n", st.Kind)
	fmt.Printf("Sender:     %s\n", st.Sender)
	if st.Asset != "" {
		fmt.Printf("Asset:      %s\n", st.Asset)
	}
	fmt.Printf("Amount:     %s\n", st.Amount)
	fmt.Printf("Claimable:  %t\n", st.Claimable)
	if !st.Expiration.IsZero() {
		fmt.Printf("Expires:    %s\n", st.Expiration.Local().Format(time.DateTime))
	}
}

func cmdEncode(args []string) {
	if len(args) != 2 {
		fatal("Usage: codewallet-cli encode <code> <sender>")
	}
	enc, err := transfercode.Encode(args[0], args[1])
	if err != nil {
		fatalErr(err)
	}
	fmt.Println("0x" + enc)
}

func cmdDecode(args []string) {
	if len(args) != 2 {
		fatal("Usage: codewallet-cli decode <hex> <sender>")
	}
	code, err := transfercode.Decode(args[0], args[1])
	if err != nil {
		fatalErr(err)
	}
	fmt.Println(code)
}

func cmdPassphrase(a *app.App) {
	oldPass, err := readPassword("Current passphrase: ")
	if err != nil {
		fatal("read passphrase: %v", err)
	}
	newPass, err := readPassword("New passphrase: ")
	if err != nil {
		fatal("read passphrase: %v", err)
	}
	again, err := readPassword("Confirm new passphrase: ")
	if err != nil {
		fatal("read passphrase: %v", err)
	}
	if string(newPass) != string(again) {
		fatal("passphrases do not match")
	}
	if err := a.ChangePassphrase(oldPass, newPass); err != nil {
		fatalErr(err)
	}
	fmt.Println("Passphrase changed.")
}

// ── helpers ─────────────────────────────────────────────────────────────

func addressArg(args []string, usage string) types.Address {
	if len(args) < 1 {
		fatal("Usage: codewallet-cli %s", usage)
	}
	addr, err := types.ParseAddress(args[0])
	if err != nil {
		fatal("invalid address: %v", err)
	}
	return addr
}

// optionalAddress parses args[0] when present; zero means the active account.
func optionalAddress(args []string) types.Address {
	if len(args) == 0 {
		return types.Address{}
	}
	return addressArg(args, "")
}

func passphrase(prompt string) ([]byte, error) {
	if p := os.Getenv(passphraseEnv); p != "" {
		return []byte(p), nil
	}
	return readPassword(prompt)
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

func readLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func confirm(prompt string) bool {
	answer, err := readLine(prompt)
	return err == nil && strings.EqualFold(answer, "yes")
}

// ── Error helper ────────────────────────────────────────────────────────

var (
	exitHooks []func()
	osExit    = os.Exit
)

// atExit registers fn to run before a fatal exit. Deferred calls do not run
// on os.Exit, so anything holding the database lock must be registered here.
func atExit(fn func()) {
	exitHooks = append(exitHooks, fn)
}

// exit runs the registered hooks, most recent first, and ends the process.
func exit(code int) {
	hooks := exitHooks
	exitHooks = nil
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
	osExit(code)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	exit(1)
}
