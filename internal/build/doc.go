// Package build resolves dependencies for and executes the builds described by
// detected build descriptors.
//
// The Resolver runs an ecosystem's own dependency tool; the Executor runs its
// build or test command. Both bound every subprocess with a deadline, capture
// stdout and stderr up to a configured cap, and classify the result as an
// Outcome. Neither retries.
//
// The package also defines the report data model (BuildAttempt, BuildReport)
// and sentinel errors for classifying resolution failures. Sentinels should be
// matched with errors.Is.
package build
