// Package mangadex is the MangaDex comic source.
package mangadex

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"comik/internal/ingestion"
)

// Tag is the config key of this source.
const Tag = "mangadex"

const defaultLanguage = "en"

// Channel is one subscribed manga. Language selects the translation to
// follow and defaults to English.
type Channel struct {
	ID       string `json:"id"`
	Language string `json:"language,omitempty"`
}

// Source fetches new chapters from MangaDex.
type Source struct {
	client *MangaDexClient
}

// NewSource creates a source backed by client; nil selects the public API.
func NewSource(client *MangaDexClient) *Source {
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
	language := channel.Language
	if language == "" {
		language = defaultLanguage
	}

	manga, err := s.client.GetManga(ctx, channel.ID)
	if err != nil {
		return nil, err
	}
	feed, err := s.client.GetMangaFeed(ctx, channel.ID, language)
	if err != nil {
		return nil, err
	}

	comic := &ingestion.Comic{
		ID:    channel.ID,
		Title: getPreferredTitle(manga.Data.Attributes.Title, language),
	}
	for _, chapter := range feed {
		if !hostedOnMangaDex(chapter.Attributes) {
			continue
		}
		comic.Chapters = append(comic.Chapters, ingestion.ChapterRef{
			ID:    chapter.ID,
			Title: chapterTitle(chapter.Attributes),
		})
	}
	return comic, nil
}

// ResolvePages implements ingestion.Backend.
func (s *Source) ResolvePages(ctx context.Context, _ *ingestion.Comic, chapter ingestion.ChapterRef) ([]string, error) {
	server, err := s.client.GetAtHomeServer(ctx, chapter.ID)
	if err != nil {
		return nil, err
	}
	return server.PageURLs(), nil
}

// DownloadPage implements ingestion.Backend.
func (s *Source) DownloadPage(ctx context.Context, pageURL string, w io.Writer) error {
	return s.client.DownloadImage(ctx, pageURL, w)
}
