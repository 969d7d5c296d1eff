// Package queue is a file-backed queue of bundle build tasks.
//
// Tasks live as JSON records under the tasks directory of the data root,
// one subdirectory per lifecycle state (pending, leased, done). Moving a
// task between states moves its record between subdirectories, so the
// queue survives restarts and the state of every task can be inspected
// with plain filesystem tools.
package queue
