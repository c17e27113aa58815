// Package report holds the sinks that receive run samples and the
// renderers that turn them into files, charts and terminal summaries.
package report
