package faith

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jroosing/faith/internal/resolver"
)

// loopbackAgent builds an Agent whose DNS is overridden so that host
// always resolves to srv's loopback address and port, mirroring
// scenario (a) of spec.md §8 ("DNS override example.tld -> 127.0.0.1:PORT").
func loopbackAgent(t *testing.T, host string, srv *httptest.Server, opts AgentOptions) *Agent {
	t.Helper()
	u, err := net.ResolveTCPAddr("tcp", srv.Listener.Addr().String())
	require.NoError(t, err)

	opts.DNS.Overrides = append([]resolver.Override{{
		Domain:    host,
		Addresses: []string{"127.0.0.1:" + strconv.Itoa(u.Port)},
	}}, opts.DNS.Overrides...)

	a := NewAgent(opts)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestFetchBasicGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	a := loopbackAgent(t, "example.tld", srv, AgentOptions{})
	resp, err := a.Fetch(context.Background(), "http://example.tld/get", RequestOptions{})
	require.NoError(t, err)
	require.True(t, resp.OK())
	require.Equal(t, 200, resp.Status)

	body, err := resp.Text(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hello", body)
}

func TestFetchReusesConnectionAcrossSequentialRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	a := loopbackAgent(t, "reuse.tld", srv, AgentOptions{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		resp, err := a.Fetch(ctx, "http://reuse.tld/", RequestOptions{})
		require.NoError(t, err)
		_, err = resp.Text(ctx)
		require.NoError(t, err)
	}

	conns := a.Connections()
	require.Len(t, conns, 1)
	require.Equal(t, 2, conns[0].ResponseCount)
}

func TestFetchBodyNotReadLeavesBodyStartedUnfinished(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		<-block
	}))
	defer srv.Close()
	defer close(block)

	a := loopbackAgent(t, "hold.tld", srv, AgentOptions{})
	resp, err := a.Fetch(context.Background(), "http://hold.tld/", RequestOptions{})
	require.NoError(t, err)
	require.False(t, resp.BodyUsed())

	snap := a.Stats()
	require.Equal(t, int64(1), snap.RequestsSent)
	require.Equal(t, int64(1), snap.ResponsesReceived)
	require.Equal(t, int64(1), snap.BodiesStarted)
	require.Equal(t, int64(0), snap.BodiesFinished)

	// The undrained body pins its connection, so a second request must
	// dial a fresh one.
	resp2, err := a.Fetch(context.Background(), "http://hold.tld/", RequestOptions{})
	require.NoError(t, err)
	require.False(t, resp2.BodyUsed())
	require.Len(t, a.Connections(), 2)
}

func TestResponseCloneProducesIdenticalBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("clone me"))
	}))
	defer srv.Close()

	a := loopbackAgent(t, "clone.tld", srv, AgentOptions{})
	ctx := context.Background()
	resp, err := a.Fetch(ctx, "http://clone.tld/", RequestOptions{})
	require.NoError(t, err)

	clone, err := resp.Clone()
	require.NoError(t, err)

	original, err := resp.Text(ctx)
	require.NoError(t, err)
	cloned, err := clone.Text(ctx)
	require.NoError(t, err)

	require.Equal(t, original, cloned)
	require.Equal(t, "clone me", original)

	snap := a.Stats()
	require.Equal(t, int64(1), snap.BodiesStarted)
	require.Equal(t, int64(1), snap.BodiesFinished)
}

func TestResponseDoubleDrainIsDisturbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	a := loopbackAgent(t, "disturb.tld", srv, AgentOptions{})
	ctx := context.Background()
	resp, err := a.Fetch(ctx, "http://disturb.tld/", RequestOptions{})
	require.NoError(t, err)

	_, err = resp.Text(ctx)
	require.NoError(t, err)

	_, err = resp.Text(ctx)
	require.Error(t, err)
	require.True(t, Is(err, ResponseAlreadyDisturbed))

	_, err = resp.Clone()
	require.Error(t, err)
	require.True(t, Is(err, ResponseAlreadyDisturbed))
}

func TestIntegrityMatchAndMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// empty body
	}))
	defer srv.Close()

	a := loopbackAgent(t, "integrity.tld", srv, AgentOptions{})
	ctx := context.Background()

	sum := sha256.Sum256(nil)
	digest := base64.StdEncoding.EncodeToString(sum[:])

	resp, err := a.Fetch(ctx, "http://integrity.tld/", RequestOptions{Integrity: "sha256-" + digest})
	require.NoError(t, err)
	_, err = resp.Bytes(ctx)
	require.NoError(t, err)

	resp2, err := a.Fetch(ctx, "http://integrity.tld/", RequestOptions{Integrity: "sha256-AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="})
	require.NoError(t, err)
	_, err = resp2.Bytes(ctx)
	require.Error(t, err)
	require.True(t, Is(err, IntegrityMismatch))
}

func TestRedirectFollowStopError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/final", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte("landed"))
	}))
	defer srv.Close()

	ctx := context.Background()

	t.Run("follow", func(t *testing.T) {
		a := loopbackAgent(t, "redirect-follow.tld", srv, AgentOptions{})
		resp, err := a.Fetch(ctx, "http://redirect-follow.tld/start", RequestOptions{})
		require.NoError(t, err)
		require.True(t, resp.Redirected)
		require.Contains(t, resp.URL.String(), "/final")
	})

	t.Run("stop", func(t *testing.T) {
		a := loopbackAgent(t, "redirect-stop.tld", srv, AgentOptions{})
		resp, err := a.Fetch(ctx, "http://redirect-stop.tld/start", RequestOptions{Redirect: RedirectStop})
		require.NoError(t, err)
		require.False(t, resp.Redirected)
		require.Equal(t, http.StatusFound, resp.Status)
	})

	t.Run("error", func(t *testing.T) {
		a := loopbackAgent(t, "redirect-error.tld", srv, AgentOptions{})
		_, err := a.Fetch(ctx, "http://redirect-error.tld/start", RequestOptions{Redirect: RedirectError})
		require.Error(t, err)
		require.True(t, Is(err, RedirectDisallowed))
	})
}

func TestCacheOnlyIfCachedWithoutEntryFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))
	defer srv.Close()

	a := loopbackAgent(t, "cache.tld", srv, AgentOptions{
		Cache: CacheOptions{Store: CacheStoreMemory, Capacity: 10},
	})
	ctx := context.Background()

	_, err := a.Fetch(ctx, "http://cache.tld/x", RequestOptions{Cache: CacheOnlyIfCached})
	require.Error(t, err)
	require.True(t, Is(err, NotCached))
}

func TestCookiesRoundTripAndOmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") == "" {
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc123", Path: "/"})
		}
		_, _ = w.Write([]byte(r.Header.Get("Cookie")))
	}))
	defer srv.Close()

	a := loopbackAgent(t, "cookies.tld", srv, AgentOptions{Cookies: true})
	ctx := context.Background()

	resp, err := a.Fetch(ctx, "http://cookies.tld/", RequestOptions{})
	require.NoError(t, err)
	_, err = resp.Text(ctx)
	require.NoError(t, err)

	resp2, err := a.Fetch(ctx, "http://cookies.tld/", RequestOptions{})
	require.NoError(t, err)
	body2, err := resp2.Text(ctx)
	require.NoError(t, err)
	require.Contains(t, body2, "sid=abc123")

	resp3, err := a.Fetch(ctx, "http://cookies.tld/", RequestOptions{Credentials: CredentialsOmit})
	require.NoError(t, err)
	body3, err := resp3.Text(ctx)
	require.NoError(t, err)
	require.Empty(t, body3)
}

func TestAbortBeforeResponseYieldsAborted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		_, _ = w.Write([]byte("too slow"))
	}))
	defer srv.Close()

	a := loopbackAgent(t, "abort.tld", srv, AgentOptions{})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := a.Fetch(ctx, "http://abort.tld/", RequestOptions{})
	require.Error(t, err)
	require.True(t, Is(err, Aborted) || Is(err, Timeout))

	snap := a.Stats()
	require.Equal(t, int64(1), snap.RequestsSent)
	require.Equal(t, int64(0), snap.ResponsesReceived)
}

func TestHeadResponseDoesNotStartBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := loopbackAgent(t, "head.tld", srv, AgentOptions{})
	resp, err := a.Fetch(context.Background(), "http://head.tld/", RequestOptions{Method: http.MethodHead})
	require.NoError(t, err)
	require.True(t, resp.BodyUsed()) // already Settled(empty), never "Fresh-observable"

	snap := a.Stats()
	require.Equal(t, int64(0), snap.BodiesStarted)
}
