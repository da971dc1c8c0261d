package httptransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benaryorg/lxddns/internal/containername"
)

func peerServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteQueryMergesAnyMatch(t *testing.T) {
	a := peerServer(t, 200, `{"V1":["2001:db8::1"]}`)
	b := peerServer(t, 200, `{"V1":["2001:db8::2"]}`)

	name, err := containername.Parse("web")
	require.NoError(t, err)

	rq := NewRemoteQuery([]string{a.URL, b.URL})
	addrs, err := rq.Query(context.Background(), name)
	require.NoError(t, err)
	assert.ElementsMatch(t, []netip.Addr{
		netip.MustParseAddr("2001:db8::1"),
		netip.MustParseAddr("2001:db8::2"),
	}, addrs)
}

func TestRemoteQueryMergeIsCommutative(t *testing.T) {
	a := peerServer(t, 200, `{"V1":["2001:db8::1"]}`)
	b := peerServer(t, 200, `{"V1":["2001:db8::2"]}`)
	name, err := containername.Parse("web")
	require.NoError(t, err)

	forward, err := NewRemoteQuery([]string{a.URL, b.URL}).Query(context.Background(), name)
	require.NoError(t, err)
	backward, err := NewRemoteQuery([]string{b.URL, a.URL}).Query(context.Background(), name)
	require.NoError(t, err)

	assert.ElementsMatch(t, forward, backward)
}

func TestRemoteQuerySkipsNoMatch(t *testing.T) {
	a := peerServer(t, 200, `{"V1":null}`)
	name, err := containername.Parse("web")
	require.NoError(t, err)

	rq := NewRemoteQuery([]string{a.URL})
	addrs, err := rq.Query(context.Background(), name)
	require.NoError(t, err)
	assert.Nil(t, addrs)
}

func TestRemoteQuerySkipsNon2xx(t *testing.T) {
	a := peerServer(t, 500, `oops`)
	name, err := containername.Parse("web")
	require.NoError(t, err)

	rq := NewRemoteQuery([]string{a.URL})
	addrs, err := rq.Query(context.Background(), name)
	require.NoError(t, err)
	assert.Nil(t, addrs)
}

func TestRemoteQueryNoPeersEverRespond(t *testing.T) {
	name, err := containername.Parse("web")
	require.NoError(t, err)

	rq := NewRemoteQuery(nil)
	addrs, err := rq.Query(context.Background(), name)
	require.NoError(t, err)
	assert.Nil(t, addrs)
}
