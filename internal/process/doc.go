// Package process runs one analysis-engine invocation and owns its OS
// process tree.
//
// Handle is a thin, opinionated wrapper around os/exec:
//   - validates the executable and working directory before starting
//   - starts the engine in its own process group (unix)
//   - exposes a live, newline-delimited stream of combined stdout/stderr
//   - keeps a bounded tail of stderr lines for error reporting
//   - reaps the process in a dedicated goroutine; Wait blocks only its caller
//
// Termination is a two-phase protocol:
//
//	Terminate(graceful=true)
//	    |-- SIGTERM -> process group
//	    |-- wait GracePeriod -------------------- exited? -> nil
//	    |-- SIGKILL -> every descendant + process group
//	    |-- wait KillTimeout -------------------- exited? -> nil
//	    '-- ErrTerminationFailed
//
// Invariants:
//   - At most one OS process per Handle; a Handle is never restarted.
//   - Once the root process exits, the remaining members of its process group
//     are killed, so no forked worker outlives the Handle.
//   - A failed Spawn leaves no process behind.
//   - On linux the kernel kills the engine when the supervisor dies abnormally.
package process
