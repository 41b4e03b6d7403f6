package engage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bolhadev/engagebot/atclient"
	"github.com/bolhadev/engagebot/dedupe"

	"github.com/stretchr/testify/require"
)

type recordCall struct {
	Collection string
	Subject    atclient.StrongRef
}

// In-memory stand-in for the remote API.
type fakeAPI struct {
	lk sync.Mutex

	authErr   error
	notifs    []atclient.Notification
	notifErr  error
	posts     map[string][]atclient.PostView
	searchErr map[string]error
	// CreateRecord fails for these CIDs
	failIDs map[string]error
	// called on every CreateRecord, after the call is recorded
	onRecord func()

	sessions int
	records  []recordCall
	searches []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		posts:     map[string][]atclient.PostView{},
		searchErr: map[string]error{},
		failIDs:   map[string]error{},
	}
}

func (f *fakeAPI) CreateSession(ctx context.Context, identifier, password string) (*atclient.Session, error) {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.sessions++
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &atclient.Session{AccessToken: "access1", AccountDID: "did:plc:bot111", Handle: identifier}, nil
}

func (f *fakeAPI) ListNotifications(ctx context.Context, sess *atclient.Session, limit int) ([]atclient.Notification, error) {
	if f.notifErr != nil {
		return nil, f.notifErr
	}
	return f.notifs, nil
}

func (f *fakeAPI) SearchPosts(ctx context.Context, sess *atclient.Session, query string, limit int) ([]atclient.PostView, error) {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.searches = append(f.searches, query)
	if err := f.searchErr[query]; err != nil {
		return nil, err
	}
	return f.posts[query], nil
}

func (f *fakeAPI) CreateRecord(ctx context.Context, sess *atclient.Session, collection string, subject atclient.StrongRef) (*atclient.StrongRef, error) {
	f.lk.Lock()
	defer f.lk.Unlock()
	f.records = append(f.records, recordCall{Collection: collection, Subject: subject})
	if f.onRecord != nil {
		f.onRecord()
	}
	if err := f.failIDs[subject.CID]; err != nil {
		return nil, err
	}
	return &atclient.StrongRef{URI: "at://did:plc:bot111/" + collection + "/3k", CID: "bafyrecord"}, nil
}

func (f *fakeAPI) recordCount() int {
	f.lk.Lock()
	defer f.lk.Unlock()
	return len(f.records)
}

// Processor over the fake API with pacing waits captured instead of slept.
func testProcessor(api SocialAPI, store dedupe.Store) (*Processor, *[]time.Duration) {
	p := NewProcessor(api, store, DefaultPacing(), nil)
	waits := []time.Duration{}
	p.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return p, &waits
}

// Remembers the context state seen by each MarkProcessed call.
type ctxRecordingStore struct {
	*dedupe.MemStore
	markErrs []error
}

func (s *ctxRecordingStore) MarkProcessed(ctx context.Context, kind, id string) error {
	s.markErrs = append(s.markErrs, ctx.Err())
	return s.MemStore.MarkProcessed(ctx, kind, id)
}

// Logger writing JSON lines into buf.
func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Decoded log lines with the given message. Numbers are kept as json.Number.
func logLines(t *testing.T, buf *bytes.Buffer, msg string) []map[string]any {
	out := []map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(buf.Bytes()))
	dec.UseNumber()
	for dec.More() {
		var line map[string]any
		require.NoError(t, dec.Decode(&line))
		if line["msg"] == msg {
			out = append(out, line)
		}
	}
	return out
}

func testSession() *atclient.Session {
	return &atclient.Session{AccessToken: "access1", AccountDID: "did:plc:bot111"}
}

func tagPosts(prefix string, n int) []atclient.PostView {
	out := make([]atclient.PostView, n)
	for i := range out {
		out[i] = atclient.PostView{
			URI: fmt.Sprintf("at://did:plc:author/app.bsky.feed.post/%s%d", prefix, i),
			CID: fmt.Sprintf("bafy%s%d", prefix, i),
		}
	}
	return out
}

func candidates(kind ItemKind, ids ...string) []Candidate {
	out := make([]Candidate, len(ids))
	for i, id := range ids {
		out[i] = Candidate{ID: id, Locator: "at://did:plc:author/app.bsky.feed.post/" + id, Kind: kind}
	}
	return out
}
