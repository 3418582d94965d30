package storage

import "ammsim/internal/model"

// Sink receives simulation output for persistence.
type Sink interface {
	PutSteps(steps []model.SimStep) error
	PutTransactions(pair string, txs []model.Transaction) error
}
