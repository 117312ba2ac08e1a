// Package supervisor owns every connectivity and lifecycle component of a
// node and drives them from a single tick.
//
// Each tick:
//  1. runs the first due scheduled action (restart, then upgrade, then sleep)
//  2. saves settings once the debounce window has passed
//  3. drives the link toward associated
//  4. drives the session toward open while the link is up
//  5. routes the inbound messages the session delivered
//
// Nothing in a tick blocks except a firmware fetch and the short teardown
// delay before a restart, upgrade or sleep.
//
// The application talks to the node through the Supervisor methods
// (Publish, State, Setting, Restart, ...). They are not safe for concurrent
// use and must be called from the tick goroutine, which includes the
// application's own Setting and Command callbacks.
//
// Usage:
//
//	sup, err := supervisor.New(supervisor.Options{
//	    Identity:  id,
//	    NVRAM:     store,
//	    Radio:     radio,
//	    Transport: transport,
//	    Fetcher:   fetcher,
//	    Platform:  host,
//	    Logger:    log,
//	})
//	if err != nil {
//	    return err
//	}
//	return sup.Run(ctx)
package supervisor
