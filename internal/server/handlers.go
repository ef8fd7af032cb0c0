package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/acapella/kv_sdk_go/internal/kvapi"
	"github.com/acapella/kv_sdk_go/pkg/kv"
)

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := kv.StatusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.EscapedPath()),
			zap.Error(err))
	}
	s.rd.JSON(w, status, errorBody{Error: err.Error()})
}

func invalid(field string, err error) error {
	return &kv.ValidationError{Field: field, Reason: err.Error()}
}

func keyParam(r *http.Request, name string) (kv.Key, error) {
	segments, err := kvapi.DecodeKey(chi.URLParam(r, name))
	if err != nil {
		return nil, invalid(name, err)
	}
	return kv.Key(segments), nil
}

// parseQuorum reads n, r and w, falling back to kv.DefaultQuorum for each
// missing parameter.
func parseQuorum(q url.Values) (kv.Quorum, error) {
	quorum := kv.DefaultQuorum
	fields := []struct {
		name string
		dst  *int
	}{
		{kvapi.ParamN, &quorum.N},
		{kvapi.ParamR, &quorum.R},
		{kvapi.ParamW, &quorum.W},
	}
	for _, f := range fields {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return kv.Quorum{}, invalid(f.name, err)
		}
		*f.dst = v
	}
	return quorum, nil
}

func optionalInt64(q url.Values, name string) (*int64, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, invalid(name, err)
	}
	return &v, nil
}

func optionalKey(q url.Values, name string) (kv.Key, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	segments, err := kvapi.DecodeKey(raw)
	if err != nil {
		return nil, invalid(name, err)
	}
	return kv.Key(segments), nil
}

// scope reads the quorum and optional transaction every data route accepts.
func scope(r *http.Request) (kv.Quorum, *int64, error) {
	q := r.URL.Query()
	quorum, err := parseQuorum(q)
	if err != nil {
		return kv.Quorum{}, nil, err
	}
	tx, err := optionalInt64(q, kvapi.ParamTransaction)
	if err != nil {
		return kv.Quorum{}, nil, err
	}
	return quorum, tx, nil
}

func readValue(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, invalid("value", err)
	}
	value := kvapi.NormalizeValue(data)
	if value != nil && !json.Valid(value) {
		return nil, invalid("value", errors.New("body is not valid JSON"))
	}
	return value, nil
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r, "key")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	quorum, tx, err := scope(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req := &kv.GetEntryRequest{Key: key, Quorum: quorum, Transaction: tx}
	q := r.URL.Query()
	if req.WaitVersion, err = optionalInt64(q, kvapi.ParamWaitVersion); err != nil {
		s.writeError(w, r, err)
		return
	}
	if raw := q.Get(kvapi.ParamWaitTimeout); raw != "" {
		if req.WaitTimeout, err = kvapi.ParseSeconds(raw); err != nil {
			s.writeError(w, r, invalid(kvapi.ParamWaitTimeout, err))
			return
		}
	}

	state, err := s.backend.GetEntry(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.rd.JSON(w, http.StatusOK, kvapi.EntryBody{Version: state.Version, Value: state.Value})
}

func (s *Server) getVersion(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r, "key")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	quorum, err := parseQuorum(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	version, err := s.backend.GetVersion(r.Context(), key, quorum)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.rd.JSON(w, http.StatusOK, kvapi.VersionBody{Version: version})
}

func (s *Server) putEntry(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r, "key")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	quorum, tx, err := scope(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	oldVersion, err := optionalInt64(r.URL.Query(), kvapi.ParamOldVersion)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	value, err := readValue(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	version, err := s.backend.PutEntry(r.Context(), &kv.PutEntryRequest{
		Key:         key,
		Quorum:      quorum,
		Transaction: tx,
		OldVersion:  oldVersion,
		Value:       value,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.rd.JSON(w, http.StatusOK, kvapi.VersionBody{Version: version})
}

func (s *Server) beginTransaction(w http.ResponseWriter, r *http.Request) {
	index, err := s.backend.BeginTransaction(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.rd.JSON(w, http.StatusOK, kvapi.TxBody{Index: index})
}

func (s *Server) transactionAction(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseInt(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		s.writeError(w, r, invalid("index", err))
		return
	}

	ctx := r.Context()
	switch chi.URLParam(r, "action") {
	case kvapi.ActionCommit:
		err = s.backend.CommitTransaction(ctx, index)
	case kvapi.ActionRollback:
		err = s.backend.RollbackTransaction(ctx, index)
	case kvapi.ActionKeepAlive:
		err = s.backend.KeepAliveTransaction(ctx, index)
	default:
		s.rd.JSON(w, http.StatusNotFound, errorBody{Error: "unknown transaction action"})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.rd.JSON(w, http.StatusOK, struct{}{})
}

func (s *Server) cursorRequest(r *http.Request) (*kv.CursorRequest, error) {
	tree, err := keyParam(r, "tree")
	if err != nil {
		return nil, err
	}
	key, err := keyParam(r, "key")
	if err != nil {
		return nil, err
	}
	quorum, tx, err := scope(r)
	if err != nil {
		return nil, err
	}
	return &kv.CursorRequest{Tree: tree, Key: key, Quorum: quorum, Transaction: tx}, nil
}

func cursorBody(state *kv.CursorState) kvapi.CursorBody {
	if state == nil {
		return kvapi.CursorBody{Found: false}
	}
	return kvapi.CursorBody{Found: true, Key: state.Key, Value: state.Value}
}

func (s *Server) getCursor(w http.ResponseWriter, r *http.Request) {
	req, err := s.cursorRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	state, err := s.backend.GetCursor(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.rd.JSON(w, http.StatusOK, cursorBody(state))
}

func (s *Server) navigateCursor(w http.ResponseWriter, r *http.Request) {
	req, err := s.cursorRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var state *kv.CursorState
	switch chi.URLParam(r, "direction") {
	case kvapi.DirectionNext:
		state, err = s.backend.NextCursor(r.Context(), req)
	case kvapi.DirectionPrev:
		state, err = s.backend.PrevCursor(r.Context(), req)
	default:
		s.rd.JSON(w, http.StatusNotFound, errorBody{Error: "unknown cursor direction"})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.rd.JSON(w, http.StatusOK, cursorBody(state))
}

func (s *Server) putCursor(w http.ResponseWriter, r *http.Request) {
	req, err := s.cursorRequest(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	value, err := readValue(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.backend.PutCursor(r.Context(), &kv.PutCursorRequest{CursorRequest: *req, Value: value}); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.rd.JSON(w, http.StatusOK, struct{}{})
}

func (s *Server) rangeCursors(w http.ResponseWriter, r *http.Request) {
	tree, err := keyParam(r, "tree")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	quorum, tx, err := scope(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req := &kv.RangeRequest{Tree: tree, Quorum: quorum, Transaction: tx}
	q := r.URL.Query()
	if req.First, err = optionalKey(q, kvapi.ParamFirst); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Last, err = optionalKey(q, kvapi.ParamLast); err != nil {
		s.writeError(w, r, err)
		return
	}
	if raw := q.Get(kvapi.ParamLimit); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, r, &kv.ValidationError{Field: kvapi.ParamLimit, Reason: "limit must be a non-negative integer"})
			return
		}
		req.Limit = limit
	}

	states, err := s.backend.Range(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body := kvapi.RangeBody{Items: make([]kvapi.CursorBody, 0, len(states))}
	for i := range states {
		body.Items = append(body.Items, cursorBody(&states[i]))
	}
	s.rd.JSON(w, http.StatusOK, body)
}
