package promotion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promo-gate/internal/fetcher"
)

const body = `{"success":true,"data":[
	{"id":"1","title":"Airtime bonus","imageUrl":"/img/1.png","displayType":"inline","status":"active"},
	{"id":"2","title":"Old","imageUrl":"/img/2.png","status":"inactive"},
	{"id":"3","title":"Welcome","imageUrl":"/img/3.png","displayType":"popup","status":"active"},
	{"id":"4","title":"Broken","displayType":"popup","status":"active"},
	{"id":"5","title":"Later","imageUrl":"/img/5.png","status":"active","startTime":"2999-01-01T00:00:00Z"}
]}`

type upstream struct {
	*httptest.Server
	calls atomic.Int32
}

func newUpstream(t *testing.T, status int, payload string) *upstream {
	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		assert.Equal(t, "/promotions/active", r.URL.Path)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(u.Close)
	return u
}

func newRepo(url string, clk clock.Clock) *Repository {
	fc := fetcher.New(fetcher.StaticBaseURL(url), time.Second, fetcher.DefaultBreakerConfig())
	return NewRepository(fc, "/promotions/active", clk, DefaultStaleness)
}

func ids(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestRepository_FetchEligible(t *testing.T) {
	up := newUpstream(t, http.StatusOK, body)
	clk := clock.NewMock()
	clk.Set(now)

	got := newRepo(up.URL, clk).FetchEligible(context.Background(), clk.Now())
	assert.Equal(t, []string{"1", "3"}, ids(got))
}

func TestRepository_DegradesToEmpty(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"server error", http.StatusInternalServerError, body},
		{"no success marker", http.StatusOK, `{"success":false,"data":[{"id":"1","imageUrl":"/i.png","status":"active"}]}`},
		{"missing marker", http.StatusOK, `{"data":[{"id":"1","imageUrl":"/i.png","status":"active"}]}`},
		{"malformed body", http.StatusOK, `{"success":true,"data":{}}`},
		{"not json", http.StatusOK, `<!doctype html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newUpstream(t, tt.status, tt.payload)
			got := newRepo(up.URL, clock.NewMock()).FetchEligible(context.Background(), now)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestRepository_TransportFailure(t *testing.T) {
	up := newUpstream(t, http.StatusOK, body)
	url := up.URL
	up.Close()

	got := newRepo(url, clock.NewMock()).FetchEligible(context.Background(), now)
	assert.Empty(t, got)
}

func TestRepository_StalenessWindow(t *testing.T) {
	up := newUpstream(t, http.StatusOK, body)
	clk := clock.NewMock()
	clk.Set(now)
	repo := newRepo(up.URL, clk)

	first := repo.FetchEligible(context.Background(), clk.Now())
	clk.Add(30 * time.Second)
	second := repo.FetchEligible(context.Background(), clk.Now())

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), up.calls.Load())

	clk.Add(2 * time.Minute)
	_ = repo.FetchEligible(context.Background(), clk.Now())
	assert.Equal(t, int32(2), up.calls.Load())
}

func TestRepository_RechecksEligibilityOnCachedSet(t *testing.T) {
	up := newUpstream(t, http.StatusOK, `{"success":true,"data":[
		{"id":"a","imageUrl":"/a.png","status":"active","endTime":"2026-03-01T12:00:30Z"},
		{"id":"b","imageUrl":"/b.png","status":"active"}
	]}`)
	clk := clock.NewMock()
	clk.Set(now)
	repo := newRepo(up.URL, clk)

	assert.Equal(t, []string{"a", "b"}, ids(repo.FetchEligible(context.Background(), clk.Now())))
	clk.Add(time.Minute)
	assert.Equal(t, []string{"b"}, ids(repo.FetchEligible(context.Background(), clk.Now())))
	assert.Equal(t, int32(1), up.calls.Load())
}

func TestRepository_FailuresAreNotCached(t *testing.T) {
	up := newUpstream(t, http.StatusBadGateway, "")
	repo := newRepo(up.URL, clock.NewMock())

	_ = repo.FetchEligible(context.Background(), now)
	_ = repo.FetchEligible(context.Background(), now)
	assert.Equal(t, int32(2), up.calls.Load())
}

func TestRepository_Invalidate(t *testing.T) {
	up := newUpstream(t, http.StatusOK, body)
	repo := newRepo(up.URL, clock.NewMock())

	_ = repo.FetchEligible(context.Background(), now)
	repo.Invalidate()
	got := repo.FetchEligible(context.Background(), now)

	require.Len(t, got, 2)
	assert.Equal(t, int32(2), up.calls.Load())
}

func TestRepository_CancelledCallerDoesNotPoisonFetch(t *testing.T) {
	up := newUpstream(t, http.StatusOK, body)
	clk := clock.NewMock()
	clk.Set(now)
	repo := newRepo(up.URL, clk)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		repo.Invalidate()
		assert.Equal(t, []string{"1", "3"}, ids(repo.FetchEligible(ctx, clk.Now())))
	}

	repo.Invalidate()
	got := repo.FetchEligible(context.Background(), clk.Now())
	assert.Equal(t, []string{"1", "3"}, ids(got))
	assert.Equal(t, int32(6), up.calls.Load())
}
