package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/resumeai/resumeai-go/internal/client"
	"github.com/resumeai/resumeai-go/internal/crypto"
	"github.com/resumeai/resumeai-go/internal/model"
)

const usage = `usage: resumectl [global flags] <command> [flags]

commands:
  register   create an account and log in
  login      log in with email and password
  logout     end the current session
  whoami     show the logged-in user
  profile    update name, email or password

global flags:
`

type app struct {
	mgr    *client.Manager
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("resumectl", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() {
		fmt.Fprint(stderr, usage)
		global.PrintDefaults()
	}

	server := global.String("server", envOr("RESUMECTL_SERVER", "http://localhost:8080"), "API base URL")
	transport := global.String("transport", envOr("RESUMECTL_TRANSPORT", "cookie"), "session transport: cookie or bearer")
	sessionPath := global.String("session", "", "session file (default: user config dir)")

	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}
	if *transport != "cookie" && *transport != "bearer" {
		fmt.Fprintf(stderr, "unknown transport %q\n", *transport)
		return 2
	}

	path := *sessionPath
	if path == "" {
		p, err := client.DefaultStorePath()
		if err != nil {
			fmt.Fprintf(stderr, "locate session file: %v\n", err)
			return 1
		}
		path = p
	}

	a := &app{
		mgr:    client.NewManager(client.New(*server, *transport, nil), client.NewFileStore(path)),
		stdout: stdout,
		stderr: stderr,
	}

	cmd, rest := global.Arg(0), global.Args()[1:]
	var err error
	switch cmd {
	case "register":
		err = a.register(ctx, rest)
	case "login":
		err = a.login(ctx, rest)
	case "logout":
		err = a.logout(ctx)
	case "whoami":
		err = a.whoami(ctx)
	case "profile":
		err = a.profile(ctx, rest)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		global.Usage()
		return 2
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		return 1
	}
	return 0
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password (prompted when empty)")
	generate := fs.Bool("generate-password", false, "generate a strong random password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pw := *password
	switch {
	case *generate:
		generated, err := crypto.GeneratePassword(crypto.DefaultGeneratedLength)
		if err != nil {
			return err
		}
		pw = generated
		fmt.Fprintf(a.stdout, "Generated password: %s\n", pw)
	case pw == "":
		var err error
		if pw, err = promptPassword(a.stderr, "Password: "); err != nil {
			return err
		}
	}

	user, err := a.mgr.Register(ctx, model.RegisterRequest{
		FirstName: *first,
		LastName:  *last,
		Email:     *email,
		Password:  pw,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Registered and logged in as %s\n", formatUser(user))
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pw := *password
	if pw == "" {
		var err error
		if pw, err = promptPassword(a.stderr, "Password: "); err != nil {
			return err
		}
	}

	user, err := a.mgr.Login(ctx, model.LoginRequest{Email: *email, Password: pw})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Logged in as %s\n", formatUser(user))
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.mgr.Logout(ctx); err != nil {
		fmt.Fprintf(a.stderr, "warning: %v\n", err)
	}
	fmt.Fprintln(a.stdout, "Logged out")
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	state, user, err := a.mgr.Bootstrap(ctx)
	if err != nil {
		return err
	}
	if state != client.Authenticated {
		fmt.Fprintln(a.stdout, "Not logged in")
		return nil
	}
	fmt.Fprintln(a.stdout, formatUser(user))
	return nil
}

func (a *app) profile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("profile", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	first := fs.String("first", "", "new first name")
	last := fs.String("last", "", "new last name")
	email := fs.String("email", "", "new email address")
	changePassword := fs.Bool("change-password", false, "prompt for current and new password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := model.UpdateProfileRequest{
		FirstName: optional(*first),
		LastName:  optional(*last),
		Email:     optional(*email),
	}
	if *changePassword {
		current, err := promptPassword(a.stderr, "Current password: ")
		if err != nil {
			return err
		}
		next, err := promptPassword(a.stderr, "New password: ")
		if err != nil {
			return err
		}
		req.CurrentPassword = &current
		req.NewPassword = &next
	}

	user, err := a.mgr.UpdateProfile(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Profile updated: %s\n", formatUser(user))
	return nil
}

func formatUser(u model.UserResponse) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	return fmt.Sprintf("%s <%s> (id %s)", name, u.Email, u.ID)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
