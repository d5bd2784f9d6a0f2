package dmzj

// comicResponse is the body of GET /dynamic/comicinfo/{id}.json
type comicResponse struct {
	Data struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
		List []struct {
			ID          string `json:"id"`
			ChapterName string `json:"chapter_name"`
		} `json:"list"`
	} `json:"data"`
}

// chapterResponse is the body of GET /chapinfo/{comic}/{chapter}.html
type chapterResponse struct {
	PageURL []string `json:"page_url"`
}

// ComicInfo is a comic title with its listed chapters.
type ComicInfo struct {
	Title    string
	Chapters []ChapterInfoRef
}

// ChapterInfoRef is one entry of a comic's chapter list.
type ChapterInfoRef struct {
	ID    string
	Title string
}

// ChapterInfo holds the ordered page image URLs of a chapter.
type ChapterInfo struct {
	Pages []string
}

func (r *comicResponse) toComicInfo() *ComicInfo {
	info := &ComicInfo{Title: r.Data.Info.Title}
	for _, c := range r.Data.List {
		info.Chapters = append(info.Chapters, ChapterInfoRef{ID: c.ID, Title: c.ChapterName})
	}
	return info
}
