package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"

	"github.com/Brandon689/deskauth/auth"
	"github.com/Brandon689/deskauth/internal/config"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// createUser implements "server createuser". The password is read from the
// terminal without echo, or as the first line of stdin when it is not a
// terminal.
func createUser(args []string, stdin io.Reader, fd int, out io.Writer) error {
	fs := flag.NewFlagSet("createuser", flag.ContinueOnError)
	fs.SetOutput(out)
	email := fs.String("email", "", "email of the new user (required)")
	name := fs.String("name", "", "full name")
	superuser := fs.Bool("superuser", false, "grant superuser")
	dataDir := fs.String("data-dir", "", "directory holding the database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("createuser: -email is required")
	}

	var cfgArgs []string
	if *dataDir != "" {
		cfgArgs = append(cfgArgs, "-data-dir", *dataDir)
	}
	settings, err := config.Load(cfgArgs)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	password, err := promptPassword(stdin, fd, out)
	if err != nil {
		return err
	}

	api, err := auth.New(settings.Auth())
	if err != nil {
		return err
	}
	defer api.Close()

	var u auth.User
	err = api.WithSession(context.Background(), func(ctx context.Context, s *auth.Session) error {
		u, err = api.CreateUser(ctx, s, auth.NewUser{
			Email:       *email,
			Password:    password,
			FullName:    *name,
			IsSuperuser: *superuser,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Fprintf(out, "created user %s (%s) superuser=%t\n", u.Email, u.ID, u.IsSuperuser)
	return nil
}

func promptPassword(stdin io.Reader, fd int, out io.Writer) (string, error) {
	if !isTerminal(fd) {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(out, "Password: ")
	first, err := readPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	fmt.Fprint(out, "Repeat password: ")
	second, err := readPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}
