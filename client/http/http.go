package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	nhttp "net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	clock "github.com/jonboulle/clockwork"
	json "github.com/nikkolasg/hexjson"

	"github.com/drand/drand-verify/chain"
	"github.com/drand/drand-verify/common/log"
	"github.com/drand/drand-verify/drand"
	"github.com/drand/drand-verify/internal/metrics"
)

var errClientClosed = fmt.Errorf("client closed")

const defaultClientExec = "unknown"
const defaultHTTTPTimeout = 60 * time.Second

// New creates a new client pointing to an HTTP endpoint. The chain info is
// fetched from the endpoint and checked against chainHash when it is given.
func New(ctx context.Context, l log.Logger, url string, chainHash []byte, transport nhttp.RoundTripper) (*httpClient, error) {
	if l == nil {
		l = log.DefaultLogger()
	}
	if transport == nil {
		transport = nhttp.DefaultTransport
	}
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	pn, err := os.Executable()
	if err != nil {
		pn = defaultClientExec
	}
	agent := fmt.Sprintf("drand-verify-%s/1.0", path.Base(pn))
	c := &httpClient{
		root:   url,
		client: instrumentClient(url, transport),
		l:      l,
		clk:    clock.NewRealClock(),
		Agent:  agent,
		done:   make(chan struct{}),
	}

	chainInfo, err := c.FetchChainInfo(ctx, chainHash)
	if err != nil {
		return nil, err
	}
	c.chainInfo = chainInfo

	return c, nil
}

// NewWithInfo constructs an http client when the group parameters are already known.
func NewWithInfo(l log.Logger, url string, info *chain.Info, transport nhttp.RoundTripper) (*httpClient, error) {
	if l == nil {
		l = log.DefaultLogger()
	}
	if transport == nil {
		transport = nhttp.DefaultTransport
	}
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}

	pn, err := os.Executable()
	if err != nil {
		pn = defaultClientExec
	}
	agent := fmt.Sprintf("drand-verify-%s/1.0", path.Base(pn))
	c := &httpClient{
		root:      url,
		chainInfo: info,
		client:    instrumentClient(url, transport),
		l:         l,
		clk:       clock.NewRealClock(),
		Agent:     agent,
		done:      make(chan struct{}),
	}
	return c, nil
}

// ForURLs provides a shortcut for creating a set of HTTP clients for a set of URLs.
func ForURLs(ctx context.Context, l log.Logger, urls []string, chainHash []byte) []drand.Client {
	clients := make([]drand.Client, 0)
	var info *chain.Info
	var skipped []string
	for _, u := range urls {
		if info == nil {
			if c, err := New(ctx, l, u, chainHash, nil); err == nil {
				// Note: this wrapper assumes the current behavior that if `New` succeeds,
				// Info will have been fetched.
				info, _ = c.Info(ctx)
				clients = append(clients, c)
			} else {
				l.Warnw("", "http_client", "failed to load Info from", "url", u, "err", err)
				skipped = append(skipped, u)
			}
		} else {
			if c, err := NewWithInfo(l, u, info, nil); err == nil {
				clients = append(clients, c)
			}
		}
	}
	if info != nil {
		for _, u := range skipped {
			if c, err := NewWithInfo(l, u, info, nil); err == nil {
				clients = append(clients, c)
			}
		}
	}
	return clients
}

// IsServerReady polls the /public/latest endpoint of addr until it answers,
// or fails after 10 attempts.
func IsServerReady(ctx context.Context, addr string) (er error) {
	counter := 0
	for {
		req, err := nhttp.NewRequestWithContext(ctx, nhttp.MethodGet, "http://"+addr+"/public/latest", nhttp.NoBody)
		if err != nil {
			return err
		}
		resp, err := nhttp.DefaultClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			return nil
		}

		counter++
		if counter == 10 {
			return fmt.Errorf("timeout waiting for http server to be ready: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// httpClient implements drand.Client over the drand HTTP API. It does not
// verify what it receives.
type httpClient struct {
	root      string
	client    *nhttp.Client
	Agent     string
	chainInfo *chain.Info
	l         log.Logger
	clk       clock.Clock
	done      chan struct{}
	closeOnce sync.Once
}

// SetLog lets higher level clients provide a logger.
func (h *httpClient) SetLog(l log.Logger) {
	h.l = l
}

// SetUserAgent sets the user agent used by the client
func (h *httpClient) SetUserAgent(ua string) {
	h.Agent = ua
}

func (h *httpClient) String() string {
	return fmt.Sprintf("HTTP(%q)", h.root)
}

// MarshalText implements encoding.TextMarshaller interface
func (h *httpClient) MarshalText() ([]byte, error) {
	return json.Marshal(h.String())
}

// chainPath returns the path of an endpoint, prefixed by the chain hash when
// the chain info is known.
func (h *httpClient) chainPath(endpoint string, chainHash []byte) string {
	if len(chainHash) > 0 {
		return fmt.Sprintf("%s%x/%s", h.root, chainHash, endpoint)
	}
	return h.root + endpoint
}

func (h *httpClient) do(ctx context.Context, target string) (*nhttp.Response, error) {
	req, err := nhttp.NewRequestWithContext(ctx, nhttp.MethodGet, target, nhttp.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", h.Agent)

	resp, err := h.client.Do(req)
	if err != nil {
		var urlErr *url.Error
		var netErr net.Error
		if errors.As(err, &urlErr) || errors.As(err, &netErr) {
			return nil, fmt.Errorf("%w: %w", drand.ErrNotResponding, err)
		}
		return nil, err
	}
	switch {
	case resp.StatusCode == nhttp.StatusOK:
		return resp, nil
	case resp.StatusCode == nhttp.StatusNotFound:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", drand.ErrNotFound, target)
	default:
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %s answered %s", drand.ErrNotResponding, target, resp.Status)
	}
}

// FetchChainInfo attempts to initialize an httpClient when
// it does not know the full group parameters for a drand group. The chain hash
// is the hash of the chain info.
func (h *httpClient) FetchChainInfo(ctx context.Context, chainHash []byte) (*chain.Info, error) {
	if h.chainInfo != nil {
		return h.chainInfo, nil
	}

	resp, err := h.do(ctx, h.chainPath("info", chainHash))
	if err != nil {
		return nil, fmt.Errorf("doing request: %w", err)
	}
	defer resp.Body.Close()

	chainInfo, err := chain.InfoFromJSON(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if chainInfo.PublicKey == nil {
		return nil, fmt.Errorf("group does not have a valid key for validation")
	}

	if len(chainHash) == 0 {
		h.l.Warnw("", "http_client", "instantiated without trustroot", "chainHash", chainInfo.HashString())
	}
	if len(chainHash) > 0 && !bytes.Equal(chainInfo.Hash(), chainHash) {
		return nil, fmt.Errorf("%w: %x != %x", drand.ErrInvalidChainHash, chainInfo.Hash(), chainHash)
	}
	return chainInfo, nil
}

// Get returns the randomness at `round` or an error.
func (h *httpClient) Get(ctx context.Context, round uint64) (drand.Result, error) {
	select {
	case <-h.done:
		return nil, errClientClosed
	default:
	}

	endpoint := "public/latest"
	if round > 0 {
		endpoint = "public/" + strconv.FormatUint(round, 10)
	}
	var hash []byte
	if h.chainInfo != nil {
		hash = h.chainInfo.Hash()
	}

	resp, err := h.do(ctx, h.chainPath(endpoint, hash))
	if err != nil {
		return nil, fmt.Errorf("doing request: %w", err)
	}
	defer resp.Body.Close()

	b, err := chain.BeaconFromJSON(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", drand.ErrNotResponding, err)
	}
	if len(b.Signature) == 0 {
		return nil, fmt.Errorf("%w: insufficient response - signature is not present", drand.ErrNotResponding)
	}
	return b, nil
}

// Watch polls the endpoint when each round is scheduled and delivers the
// beacons in order.
func (h *httpClient) Watch(ctx context.Context) <-chan drand.Result {
	out := make(chan drand.Result)
	if h.chainInfo == nil {
		close(out)
		return out
	}
	go func() {
		defer close(out)
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-h.done:
				cancel()
			case <-ctx.Done():
			}
		}()

		var last uint64
		for {
			r, err := h.Get(ctx, 0)
			switch {
			case err != nil:
				h.l.Debugw("", "http_client", "watch poll failed", "err", err)
			case r.GetRound() > last:
				last = r.GetRound()
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}

			next := time.Unix(chain.TimeOfRound(h.chainInfo, last+1), 0)
			wait := next.Sub(h.clk.Now())
			if wait < 0 {
				// catching up, or the node is behind
				wait = h.chainInfo.Period / 2
			}
			select {
			case <-h.clk.After(wait):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Info returns information about the chain.
func (h *httpClient) Info(_ context.Context) (*chain.Info, error) {
	if h.chainInfo == nil {
		return nil, errors.New("no chain info available")
	}
	return h.chainInfo, nil
}

// RoundAt will return the most recent round of randomness that will be available
// at time for the current client.
func (h *httpClient) RoundAt(t time.Time) uint64 {
	if h.chainInfo == nil {
		return 0
	}
	r, err := chain.RoundForTime(h.chainInfo, t)
	if err != nil {
		return 0
	}
	return r
}

// Close stops in-flight watches and prevents further requests.
func (h *httpClient) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
		h.client.CloseIdleConnections()
	})
	return nil
}

// instrumentClient wraps transport so that request latencies are reported.
func instrumentClient(root string, transport nhttp.RoundTripper) *nhttp.Client {
	return &nhttp.Client{
		Timeout:   defaultHTTTPTimeout,
		Transport: &instrumentedTransport{root: root, next: transport},
	}
}

type instrumentedTransport struct {
	root string
	next nhttp.RoundTripper
}

func (t *instrumentedTransport) RoundTrip(req *nhttp.Request) (*nhttp.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	code := "error"
	if err == nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	metrics.ClientHTTPLatency.WithLabelValues(t.root, code).Observe(time.Since(start).Seconds())
	return resp, err
}

func (t *instrumentedTransport) CloseIdleConnections() {
	if c, ok := t.next.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}
