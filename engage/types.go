package engage

import (
	"context"

	"github.com/bolhadev/engagebot/atclient"
)

// Where a candidate came from.
type ItemKind string

const (
	KindMention    ItemKind = "mention"
	KindTaggedPost ItemKind = "tagged-post"
)

// Remote action taken on a candidate. Also used as the dedupe partition key.
type ActionKind string

const (
	ActionRepost ActionKind = "repost"
	ActionLike   ActionKind = "like"
)

func (k ActionKind) String() string {
	return string(k)
}

// Record collection (NSID) written for this action.
func (k ActionKind) Collection() string {
	switch k {
	case ActionRepost:
		return atclient.CollectionRepost
	case ActionLike:
		return atclient.CollectionLike
	}
	return ""
}

// Mentions get reposted; tagged posts get liked.
func (k ItemKind) Action() ActionKind {
	if k == KindMention {
		return ActionRepost
	}
	return ActionLike
}

// A remote post the bot might act on. ID is the content CID, which is stable across fetches; Locator is the AT-URI used to reference it in a record.
type Candidate struct {
	ID      string
	Locator string
	Kind    ItemKind
}

func (c Candidate) subject() atclient.StrongRef {
	return atclient.StrongRef{URI: c.Locator, CID: c.ID}
}

// The subset of the atproto API the bot consumes. Implemented by [atclient.APIClient].
type SocialAPI interface {
	CreateSession(ctx context.Context, identifier, password string) (*atclient.Session, error)
	ListNotifications(ctx context.Context, sess *atclient.Session, limit int) ([]atclient.Notification, error)
	SearchPosts(ctx context.Context, sess *atclient.Session, query string, limit int) ([]atclient.PostView, error)
	CreateRecord(ctx context.Context, sess *atclient.Session, collection string, subject atclient.StrongRef) (*atclient.StrongRef, error)
}

var _ SocialAPI = (*atclient.APIClient)(nil)

// Mention notifications, in order, as repost candidates.
func MentionCandidates(notifs []atclient.Notification) []Candidate {
	out := []Candidate{}
	for _, n := range notifs {
		if n.Reason != "mention" {
			continue
		}
		out = append(out, Candidate{ID: n.CID, Locator: n.URI, Kind: KindMention})
	}
	return out
}

func TaggedPostCandidates(posts []atclient.PostView) []Candidate {
	out := make([]Candidate, 0, len(posts))
	for _, p := range posts {
		out = append(out, Candidate{ID: p.CID, Locator: p.URI, Kind: KindTaggedPost})
	}
	return out
}
