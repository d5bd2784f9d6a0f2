package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
)

// ErrMalformedSubscriptions is returned when a provider's subscription list
// is not a JSON array of the expected shape.
var ErrMalformedSubscriptions = errors.New("subscription list is not an array")

// Comic is a provider's current view of one subscribed title.
type Comic struct {
	ID       string
	Title    string
	Chapters []ChapterRef
}

// ChapterRef is a chapter as listed by the provider.
type ChapterRef struct {
	ID    string
	Title string
}

// Backend is the provider-specific half of a source. C is the provider's
// subscription type.
type Backend[C any] interface {
	// ResolveComic returns metadata and the chapter listing for one subscription.
	ResolveComic(ctx context.Context, channel C) (*Comic, error)
	// ResolvePages returns the ordered page image URLs of one chapter.
	ResolvePages(ctx context.Context, comic *Comic, chapter ChapterRef) ([]string, error)
	// DownloadPage streams one page image into w.
	DownloadPage(ctx context.Context, pageURL string, w io.Writer) error
}

// DecodeChannels decodes a raw subscription list into []C.
func DecodeChannels[C any](raw json.RawMessage) ([]C, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrMalformedSubscriptions
	}
	var channels []C
	if err := json.Unmarshal(trimmed, &channels); err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}
	return channels, nil
}

// Crawl walks every subscription, every listed chapter and, unless learn is
// set, every page of each unmarked chapter. All branches run concurrently; a
// failing branch is logged and dropped without touching its siblings.
func Crawl[C any](ctx context.Context, learn bool, tag string, channels []C, backend Backend[C], env *Env) []Element {
	logger := env.Logger.With(slog.String("source", tag))
	return Gather(ctx, len(channels), func(ctx context.Context, i int) []Element {
		return crawlComic(ctx, learn, tag, channels[i], backend, env, logger)
	})
}

func crawlComic[C any](ctx context.Context, learn bool, tag string, channel C, backend Backend[C], env *Env, logger *slog.Logger) []Element {
	comic, err := backend.ResolveComic(ctx, channel)
	if err != nil {
		logger.Error("[Fetch] failed to search comic", slog.Any("error", err))
		return nil
	}
	logger.Debug("[Fetch] found comic", slog.String("title", comic.Title), slog.String("comic", comic.ID))

	return Gather(ctx, len(comic.Chapters), func(ctx context.Context, i int) []Element {
		element, ok := crawlChapter(ctx, learn, tag, comic, comic.Chapters[i], backend, env, logger)
		if !ok {
			return nil
		}
		return []Element{element}
	})
}

func crawlChapter[C any](ctx context.Context, learn bool, tag string, comic *Comic, chapter ChapterRef, backend Backend[C], env *Env, logger *slog.Logger) (Element, bool) {
	logger = logger.With(slog.String("comic", comic.ID), slog.String("chapter", chapter.ID))
	logger.Debug("[Fetch] found chapter", slog.String("title", chapter.Title))

	element := Element{
		SourceTag:   tag,
		ComicID:     comic.ID,
		ComicName:   comic.Title,
		ChapterID:   chapter.ID,
		ChapterName: chapter.Title,
	}

	if env.IsMarked(ctx, element.Key()) {
		logger.Debug("[Fetch] skip chapter because it is marked")
		return Element{}, false
	}
	if learn {
		return element, true
	}

	logger.Debug("[Fetch] fetching chapter")
	pages, err := backend.ResolvePages(ctx, comic, chapter)
	if err != nil {
		logger.Error("[Fetch] failed to search chapter", slog.Any("error", err))
		return Element{}, false
	}
	if len(pages) == 0 {
		logger.Error("[Fetch] chapter has no pages")
		return Element{}, false
	}

	images, err := DownloadPages(ctx, env, tag, comic.ID, chapter.ID, pages, backend.DownloadPage)
	if err != nil {
		logger.Error("[Fetch] failed to download chapter", slog.Any("error", err))
		return Element{}, false
	}
	element.Images = images
	return element, true
}

// DownloadPages fetches every page into the cache concurrently and returns
// the local paths in page order. Any failed page fails the whole chapter so
// that a document is never assembled with holes in it.
func DownloadPages(ctx context.Context, env *Env, tag, comicID, chapterID string, pages []string,
	download func(ctx context.Context, pageURL string, w io.Writer) error) ([]string, error) {
	return GatherAll(ctx, len(pages), func(ctx context.Context, i int) (string, error) {
		pageURL := pages[i]
		ext, err := PageExtension(pageURL)
		if err != nil {
			return "", err
		}
		f, err := env.Cache.Create(tag, comicID, chapterID, i, ext)
		if err != nil {
			return "", fmt.Errorf("failed to create image file: %w", err)
		}
		if err := download(ctx, pageURL, f); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to download image %s: %w", pageURL, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to write image file: %w", err)
		}
		return f.Name(), nil
	})
}

// PageExtension infers the file extension of a page from its URL path.
func PageExtension(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("cannot parse url %s: %w", pageURL, err)
	}
	ext := strings.TrimPrefix(path.Ext(u.Path), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot parse extension from url %s", pageURL)
	}
	return ext, nil
}
