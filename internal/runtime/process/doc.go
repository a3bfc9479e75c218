// Package process exposes the host process table to proctree.
//
// Attributes and signals go through gopsutil. On Unix a graceful stop sends
// SIGTERM and a forced stop sends SIGKILL to the single process. On Windows the
// graceful step is a best-effort interrupt that usually fails for processes
// outside our console, in which case the caller moves straight on to Kill,
// which terminates only that process and never its children.
package process
