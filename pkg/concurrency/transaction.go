// Package concurrency defines the transaction handle threaded through index
// operations. The handle is opaque to the storage core: no locking or
// visibility behavior is attached to it here.
package concurrency

import (
	"github.com/google/uuid"
)

// Each client has at most one transaction running at a given time, so the
// clientId uniquely identifies both the Transaction and its client.
type Transaction struct {
	clientId uuid.UUID
}

// NewTransaction returns a transaction handle with a fresh client id.
func NewTransaction() *Transaction {
	return &Transaction{clientId: uuid.New()}
}

// GetClientID returns the id of the client that owns this transaction.
func (t *Transaction) GetClientID() uuid.UUID {
	return t.clientId
}
