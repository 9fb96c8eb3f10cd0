// Package coordinator drives one build request end to end: fingerprint,
// cache lookup, staging, detection, and the ordered descriptor attempts.
//
// A request moves through cache_check, staging, detecting and one
// trying_descriptor state per attempt before done. Each transition is logged at
// debug level with the repository and stage fields. Builds hold an admission
// slot from a FIFO semaphore for everything after the cache check, and
// concurrent requests for the same cache key share one execution.
package coordinator
