package httptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/hashicorp/go-multierror"

	"github.com/benaryorg/lxddns/internal/containername"
)

const (
	connectTimeout = 500 * time.Millisecond
	totalTimeout   = 1500 * time.Millisecond
)

// RemoteQuery is the HTTP-backed pdns.RemoteQuery: it issues one GET per
// configured peer in parallel and merges whichever responses report a
// match.
type RemoteQuery struct {
	client *http.Client
	peers  []string
}

// NewRemoteQuery builds a RemoteQuery against the given peer API roots
// (each without a trailing slash, e.g. "https://peer.example.org/lxddns").
func NewRemoteQuery(peers []string) *RemoteQuery {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &RemoteQuery{
		peers: peers,
		client: &http.Client{
			Timeout: totalTimeout,
			Transport: &http.Transport{
				DialContext: dialer.DialContext,
			},
		},
	}
}

// Query implements pdns.RemoteQuery over HTTP. Individual peer failures
// are never an error for the caller: each failed peer is skipped, and the
// accumulated per-peer failures are dumped once at debug level.
func (r *RemoteQuery) Query(ctx context.Context, name containername.Name) ([]netip.Addr, error) {
	var wg sync.WaitGroup
	results := make([][]netip.Addr, len(r.peers))
	matched := make([]bool, len(r.peers))
	failures := make([]error, len(r.peers))

	for i, peer := range r.peers {
		wg.Add(1)
		go func(i int, peer string) {
			defer wg.Done()
			addrs, ok, err := r.queryPeer(ctx, peer, name)
			results[i] = addrs
			matched[i] = ok
			failures[i] = err
		}(i, peer)
	}
	wg.Wait()

	var skipped *multierror.Error
	var any bool
	var merged []netip.Addr
	for i := range r.peers {
		if matched[i] {
			any = true
			merged = append(merged, results[i]...)
		}
		if failures[i] != nil {
			skipped = multierror.Append(skipped, failures[i])
		}
	}
	if err := skipped.ErrorOrNil(); err != nil {
		dlog.Debugf(ctx, "http-remote-query: %d of %d peers skipped: %v", skipped.Len(), len(r.peers), err)
	}
	if !any {
		return nil, nil
	}
	return merged, nil
}

// queryPeer issues one request and reports whether the peer returned a
// match; ok is false for transport errors, non-2xx, undecodable bodies,
// and no-match answers alike, all of which are simply skipped. err
// carries the skip reason where one exists (no-match is a well-formed
// answer, not a failure).
func (r *RemoteQuery) queryPeer(ctx context.Context, peer string, name containername.Name) ([]netip.Addr, bool, error) {
	url := peer + "/resolve/v1/" + name.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		dlog.Warnf(ctx, "http-remote-query: building request for %s failed: %v", peer, err)
		return nil, false, fmt.Errorf("%s: %w", peer, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		dlog.Warnf(ctx, "http-remote-query: request to %s failed: %v", peer, err)
		return nil, false, fmt.Errorf("%s: %w", peer, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		dlog.Warnf(ctx, "http-remote-query: %s returned status %d", peer, resp.StatusCode)
		return nil, false, fmt.Errorf("%s: status %d", peer, resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		dlog.Warnf(ctx, "http-remote-query: %s returned undecodable body: %v", peer, err)
		return nil, false, fmt.Errorf("%s: %w", peer, err)
	}
	if body.V1 == nil {
		return nil, false, nil
	}
	return *body.V1, true, nil
}
