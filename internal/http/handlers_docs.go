package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// docAddress resolves the user and collection of a document route. Unknown
// collections answer 404 rather than leaking the list of valid names.
func docAddress(r *http.Request) (uid, collection string, err error) {
	uid, err = userID(r)
	if err != nil {
		return "", "", err
	}
	collection = r.PathValue("collection")
	if !storage.ValidCollection(collection) {
		return "", "", core.ErrNotFound
	}
	return uid, collection, nil
}

// readDocument reads a request body and checks it against the rules of the
// collection's document type.
func readDocument(w http.ResponseWriter, r *http.Request, uid, coll string) (json.RawMessage, error) {
	body, err := readRawJSON(w, r)
	if err != nil {
		return nil, err
	}
	if err := storage.ValidateDocument(uid, coll, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (s *Server) handleListDocs(w http.ResponseWriter, r *http.Request) {
	uid, coll, err := docAddress(r)
	if err != nil {
		writeError(w, r, err, log.OpList)
		return
	}

	q := r.URL.Query()
	var f storage.ListFilter
	if v := q.Get("from"); v != "" {
		if f.From, err = parseDate(v); err != nil {
			writeError(w, r, err, log.OpList)
			return
		}
		f.From = core.StartOfDay(f.From)
	}
	if v := q.Get("to"); v != "" {
		if f.To, err = parseDate(v); err != nil {
			writeError(w, r, err, log.OpList)
			return
		}
		f.To = core.EndOfDay(f.To)
	}
	f.Type = strings.TrimSpace(q.Get("type"))

	docs, err := s.svc.Store.List(r.Context(), uid, coll, f)
	if err != nil {
		writeError(w, r, err, log.OpList)
		return
	}
	if docs == nil {
		docs = []storage.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleCreateDoc(w http.ResponseWriter, r *http.Request) {
	uid, coll, err := docAddress(r)
	if err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}
	body, err := readDocument(w, r, uid, coll)
	if err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}
	doc, err := s.svc.Store.Create(r.Context(), uid, coll, "", body)
	if err != nil {
		writeError(w, r, err, log.OpCreate)
		return
	}
	w.Header().Set("Location", "/api/docs/"+coll+"/"+doc.ID)
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleGetDoc(w http.ResponseWriter, r *http.Request) {
	uid, coll, err := docAddress(r)
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	doc, err := s.svc.Store.Get(r.Context(), uid, coll, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handlePutDoc replaces a document, creating it under the given id when it
// does not exist yet.
func (s *Server) handlePutDoc(w http.ResponseWriter, r *http.Request) {
	uid, coll, err := docAddress(r)
	if err != nil {
		writeError(w, r, err, log.OpUpdate)
		return
	}
	body, err := readDocument(w, r, uid, coll)
	if err != nil {
		writeError(w, r, err, log.OpUpdate)
		return
	}
	doc, err := s.svc.Store.Put(r.Context(), uid, coll, r.PathValue("id"), body)
	if err != nil {
		writeError(w, r, err, log.OpUpdate)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDoc(w http.ResponseWriter, r *http.Request) {
	uid, coll, err := docAddress(r)
	if err != nil {
		writeError(w, r, err, log.OpDelete)
		return
	}
	if err := s.svc.Store.Delete(r.Context(), uid, coll, r.PathValue("id")); err != nil {
		writeError(w, r, err, log.OpDelete)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
