// Package ecosystem defines the closed set of build ecosystems the engine knows
// about and one Adapter per ecosystem.
//
// An Adapter contributes three things: the file signature the detector matches
// against (lockfiles, manifests and heuristic source extensions), the plan of
// commands used to resolve and build a detected project, and a parser for the
// project's declared dependencies. Adding an ecosystem means adding a Kind and
// registering its Adapter; nothing else branches on the kind.
package ecosystem
