// Package daemonctl starts and stops the daemon process from the CLI.
package daemonctl
