package atclient

import (
	"context"
	"fmt"
	"time"
)

const (
	CollectionRepost = "app.bsky.feed.repost"
	CollectionLike   = "app.bsky.feed.like"
)

// atproto datetime layout used for record 'createdAt' fields
const datetimeLayout = "2006-01-02T15:04:05.000Z"

// Reference to a specific version of a record: AT-URI plus CID.
type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type ProfileViewBasic struct {
	DID    string `json:"did"`
	Handle string `json:"handle"`
}

type Notification struct {
	URI       string            `json:"uri"`
	CID       string            `json:"cid"`
	Reason    string            `json:"reason"`
	Author    *ProfileViewBasic `json:"author,omitempty"`
	IndexedAt string            `json:"indexedAt,omitempty"`
	IsRead    bool              `json:"isRead"`
}

type PostView struct {
	URI       string            `json:"uri"`
	CID       string            `json:"cid"`
	Author    *ProfileViewBasic `json:"author,omitempty"`
	IndexedAt string            `json:"indexedAt,omitempty"`
}

type listNotificationsOutput struct {
	Cursor        *string        `json:"cursor,omitempty"`
	Notifications []Notification `json:"notifications"`
}

type searchPostsOutput struct {
	Cursor    *string    `json:"cursor,omitempty"`
	HitsTotal *int64     `json:"hitsTotal,omitempty"`
	Posts     []PostView `json:"posts"`
}

// Shared shape of app.bsky.feed.repost and app.bsky.feed.like records.
type subjectRecord struct {
	Type      string    `json:"$type"`
	Subject   StrongRef `json:"subject"`
	CreatedAt string    `json:"createdAt"`
}

type createRecordInput struct {
	Repo       string `json:"repo"`
	Collection string `json:"collection"`
	Record     any    `json:"record"`
}

type createRecordOutput struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// Fetches the most recent page of notifications for the session account. A zero limit leaves the server default.
func (c *APIClient) ListNotifications(ctx context.Context, sess *Session, limit int) ([]Notification, error) {
	if sess == nil {
		return nil, fmt.Errorf("listNotifications requires an authenticated session")
	}
	params := map[string]any{}
	if limit > 0 {
		params["limit"] = limit
	}
	var out listNotificationsOutput
	if err := c.WithAuth(sess).Get(ctx, "app.bsky.notification.listNotifications", params, &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

// Full-text post search. A response without a 'posts' field is treated as an empty result, not an error.
func (c *APIClient) SearchPosts(ctx context.Context, sess *Session, query string, limit int) ([]PostView, error) {
	if sess == nil {
		return nil, fmt.Errorf("searchPosts requires an authenticated session")
	}
	params := map[string]any{
		"q": query,
	}
	if limit > 0 {
		params["limit"] = limit
	}
	var out searchPostsOutput
	if err := c.WithAuth(sess).Get(ctx, "app.bsky.feed.searchPosts", params, &out); err != nil {
		return nil, err
	}
	if out.Posts == nil {
		return []PostView{}, nil
	}
	return out.Posts, nil
}

// Creates a repost or like record (per collection) pointing at subject, in the session account's repo.
func (c *APIClient) CreateRecord(ctx context.Context, sess *Session, collection string, subject StrongRef) (*StrongRef, error) {
	switch collection {
	case CollectionRepost, CollectionLike:
	default:
		return nil, fmt.Errorf("unsupported record collection: %s", collection)
	}
	if sess == nil || sess.AccountDID == "" {
		return nil, fmt.Errorf("createRecord requires an authenticated session")
	}

	input := createRecordInput{
		Repo:       sess.AccountDID,
		Collection: collection,
		Record: subjectRecord{
			Type:      collection,
			Subject:   subject,
			CreatedAt: time.Now().UTC().Format(datetimeLayout),
		},
	}
	var out createRecordOutput
	if err := c.WithAuth(sess).Post(ctx, "com.atproto.repo.createRecord", input, &out); err != nil {
		return nil, err
	}
	return &StrongRef{URI: out.URI, CID: out.CID}, nil
}
