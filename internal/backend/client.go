package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context/ctxhttp"
	"golang.org/x/time/rate"

	"github.com/David-Antunes/klonet/api"
)

const RequestIDHeader = "X-Request-Id"

var clientLog = logrus.WithField("component", "backend")

// Client talks to one emulation backend. It never retries.
type Client struct {
	host    string
	port    int
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithRateLimit caps outgoing requests per second. Zero disables the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(cl *Client) {
		if perSecond <= 0 {
			cl.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		cl.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func NewClient(host string, port int, opts ...Option) (*Client, error) {
	if host == "" {
		return nil, &api.ConfigurationError{Field: "backend host", Reason: "is not set"}
	}
	if port <= 0 || port > 65535 {
		return nil, &api.ConfigurationError{Field: "backend port", Reason: "must be between 1 and 65535"}
	}
	cl := &Client{
		host:    host,
		port:    port,
		baseURL: "http://" + host + ":" + strconv.Itoa(port),
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl, nil
}

// NewClientFromURL builds a client from an address such as http://127.0.0.1:12313.
func NewClientFromURL(raw string, opts ...Option) (*Client, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &api.ConfigurationError{Field: "backend url", Reason: err.Error()}
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return nil, &api.ConfigurationError{Field: "backend port", Reason: "is not set"}
	}
	return NewClient(u.Hostname(), port, opts...)
}

func (cl *Client) Host() string {
	return cl.host
}

func (cl *Client) Port() int {
	return cl.port
}

func (cl *Client) URL() string {
	return cl.baseURL
}

func (cl *Client) Get(ctx context.Context, path string, query url.Values, body any) (*http.Response, error) {
	return cl.send(ctx, http.MethodGet, path, query, body)
}

func (cl *Client) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	return cl.send(ctx, http.MethodPost, path, nil, body)
}

func (cl *Client) Put(ctx context.Context, path string, body any) (*http.Response, error) {
	return cl.send(ctx, http.MethodPut, path, nil, body)
}

func (cl *Client) Delete(ctx context.Context, path string, body any) (*http.Response, error) {
	return cl.send(ctx, http.MethodDelete, path, nil, body)
}

func (cl *Client) send(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	if cl.limiter != nil {
		if err := cl.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var reader io.Reader
	if body != nil {
		msgBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(msgBody)
	}

	target := cl.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequest(method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	id := uuid.NewString()
	req.Header.Set(RequestIDHeader, id)

	clientLog.WithFields(logrus.Fields{"method": method, "path": path, "request": id}).Debug("sending request")
	res, err := ctxhttp.Do(ctx, cl.http, req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return res, nil
}

// Reply is a decoded response envelope together with the full body.
type Reply struct {
	api.Envelope
	Body json.RawMessage
}

func (r *Reply) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &api.JsonDecodeError{Status: http.StatusOK, Body: string(r.Body), Err: err}
	}
	return nil
}

// ParseResponse consumes and closes the response body.
func ParseResponse(res *http.Response) (*Reply, error) {
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, &api.HttpStatusError{Status: res.StatusCode, Body: string(data)}
	}
	reply := &Reply{Body: data}
	if err := json.Unmarshal(data, &reply.Envelope); err != nil {
		return nil, &api.JsonDecodeError{Status: res.StatusCode, Body: string(data), Err: err}
	}
	return reply, nil
}

// CheckResponseCode fails unless the envelope carries the success code.
func CheckResponseCode(reply *Reply) error {
	if !reply.Succeeded() {
		return &api.BackendExecutionError{Code: reply.Code, Msg: reply.Msg}
	}
	return nil
}

// Call is one request to the backend.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// AllowMissingCode accepts envelopes without a code field. A present
	// code is still checked.
	AllowMissingCode bool
}

// Do sends the call, checks status and code, and decodes the body into out
// when out is not nil.
func (cl *Client) Do(ctx context.Context, call Call, out any) error {
	res, err := cl.send(ctx, call.Method, call.Path, call.Query, call.Body)
	if err != nil {
		return err
	}
	reply, err := ParseResponse(res)
	if err != nil {
		return err
	}
	if !(call.AllowMissingCode && reply.Code == nil) {
		if err := CheckResponseCode(reply); err != nil {
			return err
		}
	}
	if out == nil {
		return nil
	}
	return reply.Decode(out)
}
