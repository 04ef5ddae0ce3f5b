package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/x/term"

	"github.com/five82/crawldeck/internal/app"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(args) > 0 {
		switch args[0] {
		case "login", "register":
			return runAuth(ctx, args[0], args[1:])
		case "logout":
			return runLogout(args[1:])
		}
	}

	fs := flag.NewFlagSet("crawldeck", flag.ContinueOnError)
	var opts app.Options
	bindCommon(fs, &opts)
	fs.IntVar(&opts.PollEvery, "poll", 0, "refresh interval in seconds while crawls are active (optional)")
	fs.IntVar(&opts.PageSize, "page-size", 0, "rows per page (optional)")
	fs.StringVar(&opts.PrefsPath, "prefs", "", "override preferences path (optional)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := app.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "crawldeck: %v\n", err)
		return 1
	}
	return 0
}

func runAuth(ctx context.Context, cmd string, args []string) int {
	fs := flag.NewFlagSet("crawldeck "+cmd, flag.ContinueOnError)
	var opts app.Options
	var creds app.Credentials
	bindCommon(fs, &opts)
	fs.StringVar(&creds.Username, "u", "", "username (prompted when empty)")
	fs.StringVar(&creds.Password, "p", "", "password (prompted when empty)")
	if cmd == "register" {
		fs.StringVar(&creds.Email, "email", "", "email address (prompted when empty)")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	in := bufio.NewReader(os.Stdin)
	var err error
	if creds.Username == "" {
		if creds.Username, err = prompt(in, "Username: "); err != nil {
			return fail(err)
		}
	}
	if cmd == "register" && creds.Email == "" {
		if creds.Email, err = prompt(in, "Email: "); err != nil {
			return fail(err)
		}
	}
	if creds.Password == "" {
		if creds.Password, err = promptPassword(in, "Password: "); err != nil {
			return fail(err)
		}
	}

	login := app.Login
	if cmd == "register" {
		login = app.Register
	}
	user, err := login(ctx, opts, creds)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("logged in as %s\n", user.Username)
	return 0
}

func runLogout(args []string) int {
	fs := flag.NewFlagSet("crawldeck logout", flag.ContinueOnError)
	var opts app.Options
	bindCommon(fs, &opts)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := app.Logout(opts); err != nil {
		return fail(err)
	}
	fmt.Println("logged out")
	return 0
}

func bindCommon(fs *flag.FlagSet, opts *app.Options) {
	fs.StringVar(&opts.ConfigPath, "config", "", "override crawldeck config path (optional)")
	fs.StringVar(&opts.APIURL, "api", "", "override API base URL (optional)")
}

func prompt(in *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads without echo on a terminal and falls back to a plain
// line read when stdin is piped.
func promptPassword(in *bufio.Reader, label string) (string, error) {
	fd := os.Stdin.Fd()
	if !term.IsTerminal(fd) {
		return prompt(in, label)
	}
	fmt.Print(label)
	raw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "crawldeck: %v\n", err)
	return 1
}
