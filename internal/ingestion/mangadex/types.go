package mangadex

import (
	"sort"
	"strings"
)

// ============================================
// API RESPONSE STRUCTURES
// ============================================

// MangaResponse represents the response from GET /manga/{id}
type MangaResponse struct {
	Result string    `json:"result"`
	Data   MangaData `json:"data"`
}

// MangaData represents a single manga entry from the API
type MangaData struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Attributes MangaAttributes `json:"attributes"`
}

// MangaAttributes contains the manga metadata the source needs
type MangaAttributes struct {
	Title     map[string]string   `json:"title"`
	AltTitles []map[string]string `json:"altTitles"`
}

// ChapterListResponse represents the response from GET /manga/{id}/feed
type ChapterListResponse struct {
	Result string        `json:"result"`
	Data   []ChapterData `json:"data"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
	Total  int           `json:"total"`
}

// ChapterData represents a single chapter entry
type ChapterData struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes ChapterAttributes `json:"attributes"`
}

// ChapterAttributes contains chapter metadata
type ChapterAttributes struct {
	Volume             string `json:"volume"`
	Chapter            string `json:"chapter"`
	Title              string `json:"title"`
	TranslatedLanguage string `json:"translatedLanguage"`
	ExternalURL        string `json:"externalUrl"`
	Pages              int    `json:"pages"`
}

// AtHomeResponse represents the response from GET /at-home/server/{chapterId}
type AtHomeResponse struct {
	Result  string `json:"result"`
	BaseURL string `json:"baseUrl"`
	Chapter struct {
		Hash      string   `json:"hash"`
		Data      []string `json:"data"`
		DataSaver []string `json:"dataSaver"`
	} `json:"chapter"`
}

// ============================================
// EXTRACTION HELPERS
// ============================================

// PageURLs returns the full-quality image URLs in reading order
func (r *AtHomeResponse) PageURLs() []string {
	base := strings.TrimRight(r.BaseURL, "/")
	urls := make([]string, 0, len(r.Chapter.Data))
	for _, file := range r.Chapter.Data {
		urls = append(urls, base+"/data/"+r.Chapter.Hash+"/"+file)
	}
	return urls
}

// getPreferredTitle extracts title preferring the given language, then
// English, then the alphabetically first language available
func getPreferredTitle(titles map[string]string, language string) string {
	if title, ok := titles[language]; ok && title != "" {
		return title
	}
	if title, ok := titles["en"]; ok && title != "" {
		return title
	}

	langs := make([]string, 0, len(titles))
	for lang := range titles {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		if titles[lang] != "" {
			return titles[lang]
		}
	}
	return ""
}

// chapterTitle builds a display title such as "Ch. 12 The Duel"
func chapterTitle(attrs ChapterAttributes) string {
	parts := make([]string, 0, 2)
	if attrs.Chapter != "" {
		parts = append(parts, "Ch. "+attrs.Chapter)
	}
	if t := strings.TrimSpace(attrs.Title); t != "" {
		parts = append(parts, t)
	}
	if len(parts) == 0 {
		return "Oneshot"
	}
	return strings.Join(parts, " ")
}

// hostedOnMangaDex reports whether the chapter's pages can be fetched from
// the at-home network (external chapters link to another site)
func hostedOnMangaDex(attrs ChapterAttributes) bool {
	return attrs.ExternalURL == "" && attrs.Pages > 0
}
