// Package jobs owns the lifecycle of analysis jobs.
//
// A Job is created Pending by the Registry and handed to its Controller,
// which runs in a goroutine of its own:
//
//	Pending    -> Running     engine started
//	Pending    -> Failed      spawn failed
//	Running    -> Completed   exit 0 and artifacts valid
//	Running    -> Failed      exit != 0, or artifacts missing or corrupt
//	Running    -> Cancelling  Cancel
//	Cancelling -> Cancelled   process tree gone
//	Cancelling -> Failed      process tree could not be killed
//
// No edge leaves Completed, Failed or Cancelled.
//
// The controller is the single writer of a job. The resource sampler and
// the output parser feed it through channels, and every change it folds in
// is published as an immutable Status: stored on the Job and forwarded to
// the Registry, which fans it out to subscribers.
//
// Cancel never blocks. A cancel that arrives before the engine runs is
// kept and applied right after Pending -> Running. Cancelling ends in
// Cancelled once the process tree is gone, or in Failed with reason
// "termination" when even the forced kill did not succeed.
package jobs
