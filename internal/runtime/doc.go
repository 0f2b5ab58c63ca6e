// Package runtime is a small account-based ledger host: addresses and
// program-derived addresses, ed25519-signed transactions, a native transfer
// capability and a Bank that executes programs over a working copy of the
// touched accounts and commits it to leveldb in a single batch.
package runtime
