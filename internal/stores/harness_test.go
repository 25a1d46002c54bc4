package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hearthly/hearth/internal/database/testutil"
	"github.com/hearthly/hearth/internal/offline"
	"github.com/hearthly/hearth/internal/syncqueue"
)

type fakeNetwork struct{ online atomic.Bool }

func (n *fakeNetwork) Online() bool    { return n.online.Load() }
func (n *fakeNetwork) Set(online bool) { n.online.Store(online) }

// fakeServer is an in-memory household API. Setting fail makes every call return it.
type fakeServer struct {
	mu    sync.Mutex
	fail  error
	next  int
	calls []string
	lists map[string]json.RawMessage
	now   time.Time
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		lists: map[string]json.RawMessage{},
		now:   time.UnixMilli(1_700_000_500_000).UTC(),
	}
}

func (s *fakeServer) failWith(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func (s *fakeServer) serve(path string, body string) {
	s.mu.Lock()
	s.lists[path] = json.RawMessage(body)
	s.mu.Unlock()
}

func (s *fakeServer) begin(method, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, method+" "+path)
	return s.fail
}

func (s *fakeServer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeServer) Get(_ context.Context, path string) (json.RawMessage, error) {
	if err := s.begin("GET", path); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if body, ok := s.lists[path]; ok {
		return body, nil
	}
	return json.RawMessage("[]"), nil
}

func (s *fakeServer) Post(_ context.Context, path string, body any) (json.RawMessage, error) {
	if err := s.begin("POST", path); err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, "/clear-purchased") {
		return json.RawMessage(`{"removed":0}`), nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.next++
	obj["id"] = fmt.Sprintf("srv-%d", s.next)
	obj["updated_at"] = s.now.Format(time.RFC3339Nano)
	s.mu.Unlock()
	return json.Marshal(obj)
}

func (s *fakeServer) Put(_ context.Context, path string, _ any) (json.RawMessage, error) {
	return nil, s.begin("PUT", path)
}

func (s *fakeServer) Delete(_ context.Context, path string) (json.RawMessage, error) {
	return nil, s.begin("DELETE", path)
}

type harness struct {
	deps   Deps
	queue  *syncqueue.Queue
	cache  *offline.Store
	net    *fakeNetwork
	server *fakeServer
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithOfflineSchema())
	h := &harness{
		cache:  offline.NewStore(offline.MemoryOpener(offline.NewMemoryBackend(0))),
		net:    &fakeNetwork{},
		server: newFakeServer(),
	}
	h.net.Set(online)
	h.queue = syncqueue.New(db, syncqueue.NewRemoteApplier(h.server),
		syncqueue.WithConnectivity(h.net),
		syncqueue.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)
	h.deps = Deps{
		Cache:   h.cache,
		Queue:   h.queue,
		Network: h.net,
		API:     h.server,
		Clock:   func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	}
	return h
}

func (h *harness) pending(t *testing.T) []syncqueue.Entry {
	t.Helper()
	entries, err := h.queue.GetPending(context.Background())
	require.NoError(t, err)
	return entries
}
