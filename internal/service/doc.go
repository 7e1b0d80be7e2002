// Package service is the session facade of the job core, the only API the
// interface layer talks to.
//
// The Supervisor owns a jobs.Registry for the life of a session and runs
// one jobs.Controller goroutine per submitted job:
//
//	interface              Supervisor               Controller{job}        engine
//	    |                      |                          |                   |
//	    | Submit(cfg) -------->| validate, Registry.Submit |                   |
//	    |<----- Status --------| go Run() --------------->| Spawn ----------->|
//	    |                      |                          |<-- output lines --|
//	    |                      |                          |<-- samples -------|
//	    |<== Subscription =====|<======= Publish =========|                   |
//	    | Cancel(id) --------->| Job.Cancel() ----------->| Terminate ------->|
//	    | Results(id) -------->| ResultSet of Completed   |                   |
//
// Submit and Cancel never wait for the engine. Statuses reach the
// interface only through subscriptions, as immutable snapshots.
//
// Close (or Do once its context is done) cancels every live job and waits
// for all controllers, so no engine process outlives the session.
package service
