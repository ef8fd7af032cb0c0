package kv

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/acapella/kv_sdk_go/internal/httpx"
	"github.com/acapella/kv_sdk_go/internal/kvapi"
)

const (
	// listenGrace is added on top of an explicit wait window so the HTTP
	// request outlives the server-side wait.
	listenGrace = 5 * time.Second
	// defaultListenRequestTimeout bounds a long-poll that relies on the
	// server's default window.
	defaultListenRequestTimeout = 5 * time.Minute
)

var jsonHeader = http.Header{"Content-Type": []string{"application/json"}}

type httpBackend struct {
	client *httpx.Client
	prefix string
}

func newHTTPBackend(client *httpx.Client, prefix string) *httpBackend {
	return &httpBackend{client: client, prefix: prefix}
}

// call executes req and maps every non-200 outcome onto the error taxonomy.
func (b *httpBackend) call(ctx context.Context, op string, req *httpx.Request) ([]byte, error) {
	if b == nil || b.client == nil {
		return nil, errors.New("kv: http backend not configured")
	}
	resp, err := b.client.Do(ctx, req)
	if err != nil {
		var httpErr *httpx.HTTPError
		if errors.As(err, &httpErr) {
			return nil, ErrorForStatus(httpErr.StatusCode, httpErr.Body)
		}
		return nil, errors.Wrapf(err, "kv: %s", op)
	}
	if err := ErrorForStatus(resp.StatusCode, resp.Body); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (b *httpBackend) scopedQuery(q Quorum, tx *int64) url.Values {
	query := kvapi.QuorumQuery(q.N, q.R, q.W)
	kvapi.SetInt64(query, kvapi.ParamTransaction, tx)
	return query
}

func (b *httpBackend) GetEntry(ctx context.Context, req *GetEntryRequest) (*EntryState, error) {
	query := b.scopedQuery(req.Quorum, req.Transaction)
	hreq := &httpx.Request{
		Method: http.MethodGet,
		Path:   kvapi.EntryPath(b.prefix, req.Key),
		Query:  query,
	}
	if req.WaitVersion != nil {
		kvapi.SetInt64(query, kvapi.ParamWaitVersion, req.WaitVersion)
		hreq.Timeout = defaultListenRequestTimeout
		if req.WaitTimeout > 0 {
			query.Set(kvapi.ParamWaitTimeout, kvapi.FormatSeconds(req.WaitTimeout))
			hreq.Timeout = req.WaitTimeout + listenGrace
		}
	}

	data, err := b.call(ctx, "get entry", hreq)
	if err != nil {
		return nil, err
	}
	var body kvapi.EntryBody
	if err := kvapi.Decode(data, &body); err != nil {
		return nil, err
	}
	return &EntryState{Version: body.Version, Value: kvapi.NormalizeValue(body.Value)}, nil
}

func (b *httpBackend) GetVersion(ctx context.Context, key Key, q Quorum) (int64, error) {
	data, err := b.call(ctx, "get version", &httpx.Request{
		Method: http.MethodGet,
		Path:   kvapi.VersionPath(b.prefix, key),
		Query:  kvapi.QuorumQuery(q.N, q.R, q.W),
	})
	if err != nil {
		return 0, err
	}
	var body kvapi.VersionBody
	if err := kvapi.Decode(data, &body); err != nil {
		return 0, err
	}
	return body.Version, nil
}

func (b *httpBackend) PutEntry(ctx context.Context, req *PutEntryRequest) (int64, error) {
	query := b.scopedQuery(req.Quorum, req.Transaction)
	kvapi.SetInt64(query, kvapi.ParamOldVersion, req.OldVersion)
	data, err := b.call(ctx, "put entry", &httpx.Request{
		Method: http.MethodPut,
		Path:   kvapi.EntryPath(b.prefix, req.Key),
		Query:  query,
		Header: jsonHeader,
		Body:   req.Value,
	})
	if err != nil {
		return 0, err
	}
	var body kvapi.VersionBody
	if err := kvapi.Decode(data, &body); err != nil {
		return 0, err
	}
	return body.Version, nil
}

func (b *httpBackend) BeginTransaction(ctx context.Context) (int64, error) {
	data, err := b.call(ctx, "begin transaction", &httpx.Request{
		Method: http.MethodPost,
		Path:   kvapi.TxPath(b.prefix),
		// A lost response would leak a server-side transaction on retry.
		DisableRetry: true,
	})
	if err != nil {
		return 0, err
	}
	var body kvapi.TxBody
	if err := kvapi.Decode(data, &body); err != nil {
		return 0, err
	}
	return body.Index, nil
}

func (b *httpBackend) txAction(ctx context.Context, index int64, action string) error {
	_, err := b.call(ctx, action+" transaction "+strconv.FormatInt(index, 10), &httpx.Request{
		Method: http.MethodPost,
		Path:   kvapi.TxActionPath(b.prefix, index, action),
	})
	return err
}

func (b *httpBackend) CommitTransaction(ctx context.Context, index int64) error {
	return b.txAction(ctx, index, kvapi.ActionCommit)
}

func (b *httpBackend) RollbackTransaction(ctx context.Context, index int64) error {
	return b.txAction(ctx, index, kvapi.ActionRollback)
}

func (b *httpBackend) KeepAliveTransaction(ctx context.Context, index int64) error {
	return b.txAction(ctx, index, kvapi.ActionKeepAlive)
}

func (b *httpBackend) cursor(ctx context.Context, op, path string, req *CursorRequest) (*CursorState, error) {
	data, err := b.call(ctx, op, &httpx.Request{
		Method: http.MethodGet,
		Path:   path,
		Query:  b.scopedQuery(req.Quorum, req.Transaction),
	})
	if err != nil {
		return nil, err
	}
	var body kvapi.CursorBody
	if err := kvapi.Decode(data, &body); err != nil {
		return nil, err
	}
	if !body.Found {
		return nil, nil
	}
	return &CursorState{Key: Key(body.Key), Value: kvapi.NormalizeValue(body.Value)}, nil
}

func (b *httpBackend) GetCursor(ctx context.Context, req *CursorRequest) (*CursorState, error) {
	return b.cursor(ctx, "get cursor", kvapi.CursorPath(b.prefix, req.Tree, req.Key), req)
}

func (b *httpBackend) NextCursor(ctx context.Context, req *CursorRequest) (*CursorState, error) {
	return b.cursor(ctx, "next cursor", kvapi.NavigatePath(b.prefix, req.Tree, req.Key, kvapi.DirectionNext), req)
}

func (b *httpBackend) PrevCursor(ctx context.Context, req *CursorRequest) (*CursorState, error) {
	return b.cursor(ctx, "prev cursor", kvapi.NavigatePath(b.prefix, req.Tree, req.Key, kvapi.DirectionPrev), req)
}

func (b *httpBackend) PutCursor(ctx context.Context, req *PutCursorRequest) error {
	_, err := b.call(ctx, "put cursor", &httpx.Request{
		Method: http.MethodPut,
		Path:   kvapi.CursorPath(b.prefix, req.Tree, req.Key),
		Query:  b.scopedQuery(req.Quorum, req.Transaction),
		Header: jsonHeader,
		Body:   req.Value,
	})
	return err
}

func (b *httpBackend) Range(ctx context.Context, req *RangeRequest) ([]CursorState, error) {
	query := b.scopedQuery(req.Quorum, req.Transaction)
	if req.First != nil {
		query.Set(kvapi.ParamFirst, kvapi.EncodeKey(req.First))
	}
	if req.Last != nil {
		query.Set(kvapi.ParamLast, kvapi.EncodeKey(req.Last))
	}
	if req.Limit > 0 {
		query.Set(kvapi.ParamLimit, strconv.Itoa(req.Limit))
	}

	data, err := b.call(ctx, "range", &httpx.Request{
		Method: http.MethodGet,
		Path:   kvapi.RangePath(b.prefix, req.Tree),
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	var body kvapi.RangeBody
	if err := kvapi.Decode(data, &body); err != nil {
		return nil, err
	}
	items := make([]CursorState, 0, len(body.Items))
	for _, item := range body.Items {
		items = append(items, CursorState{Key: Key(item.Key), Value: kvapi.NormalizeValue(item.Value)})
	}
	return items, nil
}
