package httpapi

import "encoding/json"

// OpenAccountRequest is the body of POST /accounts.
type OpenAccountRequest struct {
	ID      string `json:"id"`
	Owner   string `json:"owner,omitempty"`
	Balance int64  `json:"balance"`
}

// TransferRequest is the body of POST /transfers. Empty ids are generated;
// the transfer id defaults to the transaction id.
type TransferRequest struct {
	ID            string `json:"id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	From          string `json:"from"`
	To            string `json:"to"`
	Amount        int64  `json:"amount"`
}

// CollectRequest is the body of POST /accounts/{id}/collections.
type CollectRequest struct {
	TransactionID string   `json:"transaction_id,omitempty"`
	Sources       []string `json:"sources"`
	Amount        int64    `json:"amount"`
}

// FreezeRequest is the body of POST /accounts/{id}/freezes. The freeze id
// defaults to the transaction id.
type FreezeRequest struct {
	ID            string `json:"id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// Accepted answers a request that started a transaction.
type Accepted struct {
	Stream        string `json:"stream"`
	TransactionID string `json:"transaction_id"`
}

// HistoryEntry is one stored record of a stream.
type HistoryEntry struct {
	Seq     int64           `json:"seq"`
	Version int64           `json:"version"`
	Kind    string          `json:"kind"`
	Hash    string          `json:"hash"`
	Payload json.RawMessage `json:"payload"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Pending int    `json:"pending"`
	Error   string `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
