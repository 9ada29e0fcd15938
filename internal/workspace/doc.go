// Package workspace wires the stores, embedding client, index manager and
// branch handler for one project root from a config.Config.
//
// The metadata database and vector snapshot live in the configured data
// directory. A branch switch detected by the branch handler is applied to the
// index as an incremental update, or as a full build when the diff between
// the branches is unknown.
package workspace
