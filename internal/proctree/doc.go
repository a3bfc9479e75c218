// Package proctree discovers and terminates process trees.
//
// A run starts from seed records found by pid, name or pattern lookups. Resolve
// expands the seeds into their full descendant closure by re-scanning the live
// process table until a scan adds nothing new, and orders the result
// newest-created-first so children are generally stopped before their parents.
// The Reaper then stops every target sequentially, escalating from a graceful
// terminate to a forceful kill, and partitions the targets into victims and
// survivors.
//
// The process table is owned by the operating system and changes underneath
// every call. Records are point-in-time snapshots, every read tolerates the
// process exiting mid-way, and nothing is cached between calls. Pid reuse inside
// one call is detected only when both the snapshot and the live process report a
// creation time.
package proctree
