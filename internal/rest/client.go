package rest

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"tuleapsync/internal/codec"
)

const (
	DefaultPageSize = 50

	HeaderPaginationSize   = "X-PAGINATION-SIZE"
	HeaderPaginationLimit  = "X-PAGINATION-LIMIT"
	HeaderPaginationOffset = "X-PAGINATION-OFFSET"
)

// Client runs requests against the Tuleap REST API. Requests are issued
// one at a time; the token held by Auth is shared by all of them.
type Client struct {
	Conn     Connector
	Auth     Authenticator
	Codec    *codec.Registry
	PageSize int
	Logger   *log.Logger
}

func New(conn Connector, auth Authenticator, reg *codec.Registry) *Client {
	return &Client{Conn: conn, Auth: auth, Codec: reg, PageSize: DefaultPageSize}
}

func (c *Client) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func (c *Client) pageSize() int {
	if c.PageSize <= 0 {
		return DefaultPageSize
	}
	return c.PageSize
}

func (c *Client) authorize(req Request) Request {
	if c.Auth == nil {
		return req
	}
	tok, ok := c.Auth.Token()
	if !ok {
		return req
	}
	return req.With(Header(HeaderAuthToken, tok.Value), Header(HeaderAuthUserID, tok.UserID))
}

func (c *Client) send(ctx context.Context, req Request) (Response, error) {
	resp, err := c.Conn.Send(ctx, c.authorize(req))
	if err != nil && ctx.Err() != nil {
		return resp, &CanceledError{Err: ctx.Err()}
	}
	return resp, err
}

// Run sends req. On a 401 answer it logs in again and sends the same
// request once more; whatever the second answer is, it is returned.
func (c *Client) Run(ctx context.Context, req Request) (Response, error) {
	if err := checkCanceled(ctx); err != nil {
		return Response{}, err
	}
	resp, err := c.send(ctx, req)
	if err != nil || resp.Status != http.StatusUnauthorized || c.Auth == nil {
		return resp, err
	}
	if err := c.Auth.Login(ctx); err != nil {
		if ctx.Err() != nil {
			return resp, &CanceledError{Err: ctx.Err()}
		}
		c.logger().Printf("tuleap: invalid credentials for %s: %v", req, err)
		return resp, nil
	}
	return c.send(ctx, req)
}

// CheckedRun is Run turning any non-2xx answer into a *ServerError.
func (c *Client) CheckedRun(ctx context.Context, req Request) (Response, error) {
	resp, err := c.Run(ctx, req)
	if err != nil {
		return resp, err
	}
	if !resp.OK() {
		return resp, newServerError(req, resp)
	}
	return resp, nil
}

func getOne[T any](ctx context.Context, c *Client, req Request, decode func([]byte) (T, error)) (T, error) {
	resp, err := c.CheckedRun(ctx, req)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode(resp.Body)
}

// collect reads every page of a collection. Each page is a fresh request
// derived from req with its own offset, and pages stop at the first short
// one or once the announced collection size is reached.
func collect[T any](ctx context.Context, c *Client, req Request, decode func([]byte) ([]T, error)) ([]T, error) {
	limit := c.pageSize()
	var out []T
	offset := 0
	for {
		if err := checkCanceled(ctx); err != nil {
			return nil, err
		}
		page := req.With(SetQuery("limit", strconv.Itoa(limit)), SetQuery("offset", strconv.Itoa(offset)))
		resp, err := c.CheckedRun(ctx, page)
		if err != nil {
			return nil, err
		}
		items, err := decode(resp.Body)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		offset += len(items)
		if len(items) < limit {
			return out, nil
		}
		if total, err := strconv.Atoi(resp.Header.Get(HeaderPaginationSize)); err == nil && offset >= total {
			return out, nil
		}
	}
}
