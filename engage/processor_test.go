package engage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bolhadev/engagebot/atclient"
	"github.com/bolhadev/engagebot/dedupe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessBatchIdempotent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	api := newFakeAPI()
	store := dedupe.NewMemStore(0)
	assert.NoError(store.MarkProcessed(ctx, "repost", "X"))

	p, _ := testProcessor(api, store)
	res := p.ProcessBatch(ctx, candidates(KindMention, "X"), ActionRepost, testSession())

	assert.Equal(0, api.recordCount())
	assert.Equal(BatchResult{Candidates: 1, Skipped: 1}, res)
	n, _ := store.Len(ctx, "repost")
	assert.Equal(1, n)
}

func TestProcessBatchRetriesFailures(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	api := newFakeAPI()
	api.failIDs["Y"] = &atclient.APIError{StatusCode: http.StatusBadGateway}
	store := dedupe.NewMemStore(0)
	p, _ := testProcessor(api, store)

	res := p.ProcessBatch(ctx, candidates(KindTaggedPost, "Y"), ActionLike, testSession())
	assert.Equal(1, res.Failed)
	ok, _ := store.HasProcessed(ctx, "like", "Y")
	assert.False(ok)

	// remote recovers; next batch acts again
	delete(api.failIDs, "Y")
	res = p.ProcessBatch(ctx, candidates(KindTaggedPost, "Y"), ActionLike, testSession())
	assert.Equal(1, res.Succeeded)
	assert.Equal(2, api.recordCount())
	ok, _ = store.HasProcessed(ctx, "like", "Y")
	assert.True(ok)
}

func TestProcessBatchPartialFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	api := newFakeAPI()
	api.failIDs["B"] = errors.New("connection reset")
	store := dedupe.NewMemStore(0)
	p, _ := testProcessor(api, store)

	res := p.ProcessBatch(ctx, candidates(KindMention, "A", "B", "C"), ActionRepost, testSession())
	assert.Equal(BatchResult{Candidates: 3, Succeeded: 2, Failed: 1}, res)
	require.Len(t, api.records, 3)
	assert.Equal("A", api.records[0].Subject.CID)
	assert.Equal("B", api.records[1].Subject.CID)
	assert.Equal("C", api.records[2].Subject.CID)

	for id, want := range map[string]bool{"A": true, "B": false, "C": true} {
		ok, err := store.HasProcessed(ctx, "repost", id)
		assert.NoError(err)
		assert.Equal(want, ok, id)
	}
}

func TestProcessBatchAfterReset(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	api := newFakeAPI()
	store := dedupe.NewMemStore(0)
	p, _ := testProcessor(api, store)

	p.ProcessBatch(ctx, candidates(KindMention, "Z"), ActionRepost, testSession())
	p.ProcessBatch(ctx, candidates(KindMention, "Z"), ActionRepost, testSession())
	assert.Equal(1, api.recordCount())

	assert.NoError(store.Reset(ctx))
	ok, _ := store.HasProcessed(ctx, "repost", "Z")
	assert.False(ok)

	p.ProcessBatch(ctx, candidates(KindMention, "Z"), ActionRepost, testSession())
	assert.Equal(2, api.recordCount())
}

func TestProcessBatchLikeScenario(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	api := newFakeAPI()
	store := dedupe.LoadFileStore(t.TempDir(), nil, "like")

	posts := TaggedPostCandidates(tagPosts("p", 25))
	for _, c := range posts[:10] {
		require.NoError(store.MarkProcessed(ctx, "like", c.ID))
	}
	// two of the fifteen new posts fail remotely
	api.failIDs[posts[12].ID] = &atclient.APIError{StatusCode: http.StatusTooManyRequests}
	api.failIDs[posts[20].ID] = &atclient.APIError{StatusCode: http.StatusInternalServerError}

	p, waits := testProcessor(api, store)
	res := p.ProcessBatch(ctx, posts, ActionLike, testSession())

	assert.Equal(BatchResult{Candidates: 25, Skipped: 10, Succeeded: 13, Failed: 2}, res)
	assert.Equal(15, api.recordCount())
	for _, rc := range api.records {
		assert.Equal(atclient.CollectionLike, rc.Collection)
	}
	require.Len(*waits, 13)
	for _, d := range *waits {
		assert.Equal(DefaultLikePacing, d)
	}
	n, err := store.Len(ctx, "like")
	assert.NoError(err)
	assert.Equal(10+13, n)

	// persisted after each success
	reloaded := dedupe.LoadFileStore(store.Dir, nil, "like")
	n, err = reloaded.Len(ctx, "like")
	assert.NoError(err)
	assert.Equal(23, n)
}

func TestProcessBatchRepostNotPaced(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	api := newFakeAPI()
	p, waits := testProcessor(api, dedupe.NewMemStore(0))

	res := p.ProcessBatch(ctx, candidates(KindMention, "A", "B"), ActionRepost, testSession())
	assert.Equal(2, res.Succeeded)
	assert.Empty(*waits)
	assert.Equal(atclient.CollectionRepost, api.records[0].Collection)
}

func TestProcessBatchEmpty(t *testing.T) {
	assert := assert.New(t)
	api := newFakeAPI()
	p, _ := testProcessor(api, dedupe.NewMemStore(0))

	res := p.ProcessBatch(context.Background(), []Candidate{}, ActionLike, testSession())
	assert.Equal(BatchResult{}, res)
	assert.Equal(0, api.recordCount())
}

func TestProcessBatchStopsOnShutdown(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	api := newFakeAPI()
	p := NewProcessor(api, dedupe.NewMemStore(0), map[ActionKind]time.Duration{ActionLike: time.Hour}, nil)

	go func() {
		for api.recordCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	res := p.ProcessBatch(ctx, candidates(KindTaggedPost, "A", "B", "C"), ActionLike, testSession())
	assert.Equal(1, res.Succeeded)
	assert.Equal(1, api.recordCount())
}

func TestProcessBatchRecordsSuccessDuringShutdown(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := newFakeAPI()
	// shutdown arrives while the remote call is in flight
	api.onRecord = cancel
	store := &ctxRecordingStore{MemStore: dedupe.NewMemStore(0)}
	p, _ := testProcessor(api, store)

	res := p.ProcessBatch(ctx, candidates(KindMention, "A"), ActionRepost, testSession())
	assert.Equal(1, res.Succeeded)
	require.Len(t, store.markErrs, 1)
	assert.NoError(store.markErrs[0])
	ok, err := store.HasProcessed(context.Background(), "repost", "A")
	assert.NoError(err)
	assert.True(ok)
}

func TestProcessBatchLogsActionError(t *testing.T) {
	assert := assert.New(t)
	var buf bytes.Buffer
	api := newFakeAPI()
	api.failIDs["bafyaaa"] = &atclient.APIError{StatusCode: http.StatusTooManyRequests, Name: "RateLimitExceeded", Body: `{"error":"RateLimitExceeded"}`}
	p, _ := testProcessor(api, dedupe.NewMemStore(0))
	p.Logger = bufferLogger(&buf)

	res := p.ProcessBatch(context.Background(), candidates(KindTaggedPost, "bafyaaa"), ActionLike, testSession())
	assert.Equal(1, res.Failed)

	lines := logLines(t, &buf, "action failed")
	require.Len(t, lines, 1)
	assert.Equal("like of bafyaaa failed (HTTP 429): API request failed (HTTP 429): RateLimitExceeded", lines[0]["err"])
	assert.Equal(json.Number("429"), lines[0]["status"])
	assert.Equal(`{"error":"RateLimitExceeded"}`, lines[0]["body"])
}

func TestActionError(t *testing.T) {
	assert := assert.New(t)

	apiErr := &atclient.APIError{StatusCode: http.StatusBadRequest, Name: "InvalidRequest", Body: `{"error":"InvalidRequest"}`}
	ae := newActionError(ActionLike, "bafyaaa", apiErr)
	assert.Equal(http.StatusBadRequest, ae.StatusCode)
	assert.Equal(`{"error":"InvalidRequest"}`, ae.Body)
	assert.True(errors.Is(ae, ErrAction))
	var target *atclient.APIError
	assert.True(errors.As(ae, &target))
	assert.Contains(ae.Error(), "HTTP 400")

	ae = newActionError(ActionRepost, "bafybbb", errors.New("dial tcp: timeout"))
	assert.Equal(0, ae.StatusCode)
	assert.Equal("repost of bafybbb failed: dial tcp: timeout", ae.Error())
}
