package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/eventual2pc/internal/bank"
	"github.com/roach88/eventual2pc/internal/store"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Pending: s.dispatcher.Pending()})
}

func (s *Server) openAccount(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		s.writeError(w, errBadRequest("id is required"))
		return
	}
	res, err := s.dispatcher.Process(r.Context(), &bank.OpenAccount{AccountID: req.ID, Owner: req.Owner, Balance: req.Balance})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, res.Entity.(*bank.Account).View())
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, _, err := s.dispatcher.Load(r.Context(), bank.AccountStream(id))
	if err != nil {
		s.writeError(w, err)
		return
	}
	a := e.(*bank.Account)
	if !a.Opened() {
		s.writeError(w, fmt.Errorf("%w: %s", bank.ErrAccountNotOpen, id))
		return
	}
	s.writeJSON(w, http.StatusOK, a.View())
}

func (s *Server) startCollect(w http.ResponseWriter, r *http.Request) {
	var req CollectRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	txID := req.TransactionID
	if txID == "" {
		txID = s.dispatcher.NewID()
	}
	cmd, err := s.domain.StartCollect(id, txID, req.Sources, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.dispatcher.Process(r.Context(), cmd); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, Accepted{Stream: bank.AccountStream(id).String(), TransactionID: txID})
}

func (s *Server) startTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !s.decode(w, r, &req) {
		return
	}
	txID := req.TransactionID
	if txID == "" {
		txID = s.dispatcher.NewID()
	}
	id := req.ID
	if id == "" {
		id = txID
	}
	cmd, err := s.domain.StartTransfer(id, txID, req.From, req.To, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.dispatcher.Process(r.Context(), cmd); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, Accepted{Stream: bank.TransferStream(id).String(), TransactionID: txID})
}

func (s *Server) getTransfer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, _, err := s.dispatcher.Load(r.Context(), bank.TransferStream(id))
	if err != nil {
		s.writeError(w, err)
		return
	}
	t := e.(*bank.Transfer)
	if t.Request() == nil {
		s.writeError(w, errNotFound("transfer %s not found", id))
		return
	}
	s.writeJSON(w, http.StatusOK, t.View())
}

func (s *Server) startFreeze(w http.ResponseWriter, r *http.Request) {
	var req FreezeRequest
	if !s.decode(w, r, &req) {
		return
	}
	account := chi.URLParam(r, "id")
	txID := req.TransactionID
	if txID == "" {
		txID = s.dispatcher.NewID()
	}
	id := req.ID
	if id == "" {
		id = txID
	}
	cmd, err := s.domain.StartFreeze(id, txID, account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.dispatcher.Process(r.Context(), cmd); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, Accepted{Stream: bank.FreezeStream(id).String(), TransactionID: txID})
}

func (s *Server) getFreeze(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, _, err := s.dispatcher.Load(r.Context(), bank.FreezeStream(id))
	if err != nil {
		s.writeError(w, err)
		return
	}
	f := e.(*bank.Freeze)
	if f.Request() == nil {
		s.writeError(w, errNotFound("freeze %s not found", id))
		return
	}
	s.writeJSON(w, http.StatusOK, f.View())
}

func (s *Server) getStream(w http.ResponseWriter, r *http.Request) {
	stream := store.Stream{Type: chi.URLParam(r, "type"), ID: chi.URLParam(r, "id")}
	stored, err := s.store.Load(r.Context(), stream)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(stored) == 0 {
		s.writeError(w, errNotFound("stream %s has no records", stream))
		return
	}
	out := make([]HistoryEntry, 0, len(stored))
	for _, sr := range stored {
		out = append(out, HistoryEntry{
			Seq:     sr.Seq,
			Version: sr.Version,
			Kind:    string(sr.Envelope.Kind),
			Hash:    sr.Envelope.Hash,
			Payload: json.RawMessage(sr.Envelope.Payload),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, errBadRequest("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	var he *httpError
	msg := err.Error()
	if errors.As(err, &he) {
		msg = he.msg
	}
	s.writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}
