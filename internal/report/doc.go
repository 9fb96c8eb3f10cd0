// Package report renders build reports, analyses, cache statistics and build
// history for the terminal, and encodes any of them as JSON.
package report
