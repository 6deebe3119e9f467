// Package executor applies queued payloads to the downstream datastore and
// classifies failures as transient or permanent. That classification is the
// contract the worker's retry policy rests on.
package executor
