// Package cli provides the interactive accountkeeper console.
//
// It wires configuration, the account store, the account service and a
// session into a REPL. On an empty store the first thing it does is ask for
// the administrator account.
//
// Key features:
//   - register / redeem an invite / login / logout
//   - first login completes the profile, an accepted one-time password
//     leads straight to choosing a new password
//   - administrators issue invites and one-time passwords, grant and revoke
//     roles, delete and list accounts
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
