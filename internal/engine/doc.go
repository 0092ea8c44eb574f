// Package engine provides the asynchronous sync execution engine. It
// orchestrates the run lifecycle by resolving a healthy runner, handing it
// the sync, enforcing timeouts via context deadlines, and updating the
// store with progress and results in real time.
package engine
