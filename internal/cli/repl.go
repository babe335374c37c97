package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. *App satisfies
// it; tests provide a stub.
type execIface interface {
	isLoggedIn() bool
	isAdmin() bool

	Register(ctx context.Context) error
	Redeem(ctx context.Context) error
	Login(ctx context.Context) error
	Whoami(ctx context.Context) error
	EditProfile(ctx context.Context) error
	Logout(ctx context.Context) error

	Invite(ctx context.Context) error
	IssueOTP(ctx context.Context) error
	Grant(ctx context.Context) error
	Revoke(ctx context.Context) error
	Delete(ctx context.Context) error
	List(ctx context.Context) error
}

const (
	helpGuest = "Available commands: register, redeem, login, exit"
	helpUser  = "Available commands: whoami, profile, logout, exit"
	helpAdmin = "Available commands: whoami, profile, register, invite, otp, grant, revoke, delete, (l)ist, logout, exit"
)

// runREPL reads one command per line from reader and dispatches it to a
// until EOF, "exit" or "quit". Handlers prompt through the same reader, so
// commands and their answers can be piped in together. Handlers report
// their own errors and the errors they return are dropped here.
// Administrator commands are refused unless the session acts as Admin.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("accounts %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		if adminCommand(cmd) && !a.isAdmin() {
			printlnFn("Administrator login required.")
			continue
		}

		switch cmd {
		case "help":
			switch {
			case a.isAdmin():
				printlnFn(helpAdmin)
			case a.isLoggedIn():
				printlnFn(helpUser)
			default:
				printlnFn(helpGuest)
			}

		case "register":
			_ = a.Register(ctx)
		case "redeem":
			_ = a.Redeem(ctx)
		case "login":
			_ = a.Login(ctx)
		case "whoami":
			_ = a.Whoami(ctx)
		case "profile":
			_ = a.EditProfile(ctx)
		case "logout":
			_ = a.Logout(ctx)

		case "invite":
			_ = a.Invite(ctx)
		case "otp":
			_ = a.IssueOTP(ctx)
		case "grant":
			_ = a.Grant(ctx)
		case "revoke":
			_ = a.Revoke(ctx)
		case "delete":
			_ = a.Delete(ctx)
		case "l", "list":
			_ = a.List(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}

func adminCommand(cmd string) bool {
	switch cmd {
	case "invite", "otp", "grant", "revoke", "delete", "l", "list":
		return true
	}
	return false
}
