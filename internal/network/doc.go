// Package network tracks connectivity to the remote store and coordinates
// sync passes for presentation code.
//
// The Monitor checks the remote health endpoint on an interval and whenever
// the kernel reports a network interface change over netlink. The
// Orchestrator combines connectivity, the pending count and the sync manager
// into the read model the CLI and agent API display, and fans sync progress
// out to subscribers.
//
// Reconnecting does not start a sync on its own unless auto sync was enabled
// explicitly.
package network
