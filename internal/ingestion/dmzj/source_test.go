package dmzj

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comik/internal/cache"
	"comik/internal/ingestion"
	"comik/internal/mark"
)

// fakeDMZJ serves the comic, chapter and image endpoints from one router.
type fakeDMZJ struct {
	srv *httptest.Server

	mu       sync.Mutex
	chapters []string
	headers  []http.Header
}

func newFakeDMZJ(t *testing.T) *fakeDMZJ {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fakeDMZJ{}
	router := gin.New()

	router.GET("/dynamic/comicinfo/:id", func(c *gin.Context) {
		switch strings.TrimSuffix(c.Param("id"), ".json") {
		case "100":
			c.JSON(http.StatusOK, gin.H{
				"data": gin.H{
					"info": gin.H{"title": "Sample Comic"},
					"list": []gin.H{
						{"id": "1001", "chapter_name": "Chapter 1"},
						{"id": "1002", "chapter_name": "Chapter 2"},
					},
				},
			})
		default:
			c.String(http.StatusInternalServerError, "boom")
		}
	})

	router.GET("/chapinfo/:comic/:chapter", func(c *gin.Context) {
		chapter := strings.TrimSuffix(c.Param("chapter"), ".html")
		f.mu.Lock()
		f.chapters = append(f.chapters, chapter)
		f.mu.Unlock()

		c.JSON(http.StatusOK, gin.H{
			"page_url": []string{
				f.srv.URL + "/img/" + chapter + "_0.jpg",
				f.srv.URL + "/img/" + chapter + "_1.png",
			},
		})
	})

	router.GET("/img/:name", func(c *gin.Context) {
		f.mu.Lock()
		f.headers = append(f.headers, c.Request.Header.Clone())
		f.mu.Unlock()
		c.String(http.StatusOK, "image:"+c.Param("name"))
	})

	f.srv = httptest.NewServer(router)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeDMZJ) source() *Source {
	return NewSource(NewClientWithBase(f.srv.URL, f.srv.URL))
}

func newEnv(t *testing.T) *ingestion.Env {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &ingestion.Env{
		Logger: logger,
		Marks:  mark.NewFileStore(filepath.Join(dir, "mark")),
		Cache:  cache.New(filepath.Join(dir, "cache"), logger),
	}
}

func TestSource_FetchSkipsMarkedChapters(t *testing.T) {
	fake := newFakeDMZJ(t)
	env := newEnv(t)
	ctx := context.Background()
	require.NoError(t, env.Marks.Mark(ctx, mark.Key{Source: Tag, ComicID: "100", ChapterID: "1001"}))

	elements := fake.source().Fetch(ctx, false, json.RawMessage(`[{"id":"100"}]`), env)

	require.Len(t, elements, 1)
	e := elements[0]
	assert.Equal(t, Tag, e.SourceTag)
	assert.Equal(t, "100", e.ComicID)
	assert.Equal(t, "Sample Comic", e.ComicName)
	assert.Equal(t, "1002", e.ChapterID)
	assert.Equal(t, "Chapter 2", e.ChapterName)
	require.Len(t, e.Images, 2)
	assert.Equal(t, filepath.Join(env.Cache.Root(), "dmzj_100_1002_0.jpg"), e.Images[0])
	assert.Equal(t, filepath.Join(env.Cache.Root(), "dmzj_100_1002_1.png"), e.Images[1])

	data, err := os.ReadFile(e.Images[1])
	require.NoError(t, err)
	assert.Equal(t, "image:1002_1.png", string(data))

	assert.Equal(t, []string{"1002"}, fake.chapters)
}

func TestSource_ImageRequestsCarryAppHeaders(t *testing.T) {
	fake := newFakeDMZJ(t)
	env := newEnv(t)

	elements := fake.source().Fetch(context.Background(), false, json.RawMessage(`[{"id":"100"}]`), env)
	require.Len(t, elements, 2)

	require.Len(t, fake.headers, 4)
	for _, h := range fake.headers {
		assert.Equal(t, imageReferer, h.Get("Referer"))
		assert.Equal(t, imageUserAgent, h.Get("User-Agent"))
	}
}

func TestSource_LearnModeListsWithoutPages(t *testing.T) {
	fake := newFakeDMZJ(t)
	env := newEnv(t)

	elements := fake.source().Fetch(context.Background(), true, json.RawMessage(`[{"id":"100"}]`), env)

	require.Len(t, elements, 2)
	for _, e := range elements {
		assert.Empty(t, e.Images)
	}
	assert.Empty(t, fake.chapters)
	assert.Empty(t, fake.headers)
}

func TestSource_FailingComicDoesNotAffectOthers(t *testing.T) {
	fake := newFakeDMZJ(t)
	env := newEnv(t)

	elements := fake.source().Fetch(context.Background(), false, json.RawMessage(`[{"id":"404"},{"id":"100"}]`), env)

	require.Len(t, elements, 2)
	for _, e := range elements {
		assert.Equal(t, "100", e.ComicID)
	}
}

func TestSource_MalformedSubscriptions(t *testing.T) {
	fake := newFakeDMZJ(t)
	env := newEnv(t)

	assert.Nil(t, fake.source().Fetch(context.Background(), false, json.RawMessage(`{"id":"100"}`), env))
	assert.Nil(t, fake.source().Fetch(context.Background(), false, json.RawMessage(`"100"`), env))
}

func TestClient_SearchComicReportsHTTPStatus(t *testing.T) {
	fake := newFakeDMZJ(t)
	client := NewClientWithBase(fake.srv.URL, fake.srv.URL)

	_, err := client.SearchComic(context.Background(), "7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
}
