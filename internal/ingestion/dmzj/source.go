// Package dmzj is the dmzj.com comic source.
package dmzj

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"comik/internal/ingestion"
)

// Tag is the config key of this source.
const Tag = "dmzj"

// Channel is one subscribed comic.
type Channel struct {
	ID string `json:"id"`
}

// Source fetches new chapters from dmzj.
type Source struct {
	client *Client
}

// NewSource creates a source backed by client; nil selects the public API.
func NewSource(client *Client) *Source {
	if client == nil {
		client = NewClient()
	}
	return &Source{client: client}
}

// Tag implements ingestion.Source.
func (s *Source) Tag() string { return Tag }

// Fetch implements ingestion.Source.
func (s *Source) Fetch(ctx context.Context, learn bool, raw json.RawMessage, env *ingestion.Env) []ingestion.Element {
	channels, err := ingestion.DecodeChannels[Channel](raw)
	if err != nil {
		env.Logger.Error("[Fetch] invalid subscription list",
			slog.String("source", Tag),
			slog.Any("error", err))
		return nil
	}
	return ingestion.Crawl[Channel](ctx, learn, Tag, channels, s, env)
}

// ResolveComic implements ingestion.Backend.
func (s *Source) ResolveComic(ctx context.Context, channel Channel) (*ingestion.Comic, error) {
	info, err := s.client.SearchComic(ctx, channel.ID)
	if err != nil {
		return nil, err
	}
	comic := &ingestion.Comic{ID: channel.ID, Title: info.Title}
	for _, c := range info.Chapters {
		comic.Chapters = append(comic.Chapters, ingestion.ChapterRef{ID: c.ID, Title: c.Title})
	}
	return comic, nil
}

// ResolvePages implements ingestion.Backend.
func (s *Source) ResolvePages(ctx context.Context, comic *ingestion.Comic, chapter ingestion.ChapterRef) ([]string, error) {
	info, err := s.client.SearchChapter(ctx, comic.ID, chapter.ID)
	if err != nil {
		return nil, err
	}
	return info.Pages, nil
}

// DownloadPage implements ingestion.Backend.
func (s *Source) DownloadPage(ctx context.Context, pageURL string, w io.Writer) error {
	return s.client.DownloadImage(ctx, pageURL, w)
}
