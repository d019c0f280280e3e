// Command flowscribe is the control CLI for the FlowScribe backup daemon.
//
// It talks to flowscribed over its Unix control socket: enabling and
// disabling backups, triggering runs, listing and restoring snapshots,
// adopting existing backup roots, and inspecting recovery offers. A hidden
// daemon-run command hosts the daemon in the foreground for development.
package main
