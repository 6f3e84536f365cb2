package comments

import (
	"context"
	"time"

	"github.com/onairlab/studio-core/crypto"
	"github.com/onairlab/studio-core/destination"
)

const youtubePageSize = 200

// YouTubeChatSource pages liveChatMessages for one destination's credentials.
type YouTubeChatSource struct {
	Adapter *destination.YouTubeAdapter
	Creds   crypto.Credentials
}

// FetchPage fetches one page of live chat messages.
func (s *YouTubeChatSource) FetchPage(ctx context.Context, chatID, pageToken string) ([]Message, string, bool, error) {
	svc, err := s.Adapter.Service(ctx, s.Creds)
	if err != nil {
		return nil, "", false, err
	}
	call := svc.LiveChatMessages.List(chatID, []string{"snippet", "authorDetails"}).
		MaxResults(youtubePageSize).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return nil, "", false, err
	}
	msgs := make([]Message, 0, len(resp.Items))
	for _, item := range resp.Items {
		m := Message{ExternalID: item.Id}
		if item.Snippet != nil {
			m.Content = item.Snippet.DisplayMessage
			if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
				m.PublishedAt = t
			}
		}
		if item.AuthorDetails != nil {
			m.Author = item.AuthorDetails.DisplayName
			m.IsAdmin = item.AuthorDetails.IsChatOwner || item.AuthorDetails.IsChatModerator
		}
		msgs = append(msgs, m)
	}
	full := len(resp.Items) == youtubePageSize
	return msgs, resp.NextPageToken, full, nil
}
