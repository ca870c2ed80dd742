// Package agent wires the long-running field agent: the queue store, the
// remote client, the sync manager, connectivity monitoring, the local status
// API with its websocket feed, and the scanner inbox importer.
//
// Only one agent may run per state directory; the lock file in the state
// directory enforces this. On start the agent demotes mutations left in the
// syncing state by a crash so the next pass replays them.
package agent
