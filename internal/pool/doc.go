// Package pool defines the on-ledger Pool State account of the shielded pool:
// its derived address, its fixed binary layout and the operations the deposit
// and initialize instructions perform on it.
package pool
