// Command fieldscan queues barcode scans on a field device and replays them
// against the remote store when connectivity allows.
//
// Most commands talk to a running agent over its local HTTP API and fall back
// to opening the queue database directly when no agent answers.
package main
