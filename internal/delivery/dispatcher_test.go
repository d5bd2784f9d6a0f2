package delivery

import (
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"comik/internal/document"
	"comik/internal/ingestion"
	"comik/internal/mark"
)

// --- MOCKS ---

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendFile(ctx context.Context, to, subject, path string) error {
	args := m.Called(ctx, to, subject, path)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, title, content string) error {
	args := m.Called(ctx, title, content)
	return args.Error(0)
}

// fakeAssembler writes a stub document unless the name is listed in fail.
type fakeAssembler struct {
	fail map[string]error

	mu    sync.Mutex
	names []string
}

func (a *fakeAssembler) Assemble(name, dir string, images []string, scale float64) (string, error) {
	a.mu.Lock()
	a.names = append(a.names, name)
	a.mu.Unlock()

	if err := a.fail[name]; err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	return path, os.WriteFile(path, []byte("%PDF-"), 0o644)
}

// pageCountingMailer reads each document after a short delay, like a relay
// round-trip, and records how many pages it had.
type pageCountingMailer struct {
	mu    sync.Mutex
	pages map[string][]int
}

var pageObject = regexp.MustCompile(`/Type /Page\b`)

func (m *pageCountingMailer) SendFile(_ context.Context, to, _, path string) error {
	time.Sleep(20 * time.Millisecond)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[path] = append(m.pages[path], len(pageObject.FindAll(data, -1)))
	return nil
}

type brokenStore struct{}

func (brokenStore) IsMarked(context.Context, mark.Key) (bool, error) { return false, nil }
func (brokenStore) Mark(context.Context, mark.Key) error { return errors.New("disk full") }
func (brokenStore) Close() error { return nil }

// --- SETUP ---

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func element(comicID, comicName, chapterID, chapterName string) ingestion.Element {
	return ingestion.Element{
		SourceTag:   "dmzj",
		ComicID:     comicID,
		ComicName:   comicName,
		ChapterID:   chapterID,
		ChapterName: chapterName,
		Images:      []string{"/cache/page_0.png"},
	}
}

type fixture struct {
	mailer    *MockMailer
	notifier  *MockNotifier
	assembler *fakeAssembler
	marks     *mark.FileStore
	outDir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	return &fixture{
		mailer:    new(MockMailer),
		notifier:  new(MockNotifier),
		assembler: &fakeAssembler{},
		marks:     mark.NewFileStore(filepath.Join(dir, "mark")),
		outDir:    dir,
	}
}

func (f *fixture) dispatcher(receivers []string, learn bool) *Dispatcher {
	return NewDispatcher(Options{
		Receivers: receivers,
		Scale:     0.9,
		OutputDir: f.outDir,
		Learn:     learn,
		Logger:    quietLogger(),
		Marks:     f.marks,
		Mailer:    f.mailer,
		Assembler: f.assembler,
		Notifier:  f.notifier,
	})
}

func (f *fixture) isMarked(t *testing.T, e ingestion.Element) bool {
	t.Helper()
	ok, err := f.marks.IsMarked(context.Background(), e.Key())
	require.NoError(t, err)
	return ok
}

// --- TESTS ---

func TestDispatch_PartialDeliveryStillMarks(t *testing.T) {
	f := newFixture(t)
	e := element("1", "One", "10", "Ch 10")
	doc := filepath.Join(f.outDir, "One Ch 10 (10).pdf")

	f.mailer.On("SendFile", mock.Anything, "a@example.com", AppName, doc).Return(nil)
	f.mailer.On("SendFile", mock.Anything, "b@example.com", AppName, doc).Return(errors.New("mailbox full"))
	f.mailer.On("SendFile", mock.Anything, "c@example.com", AppName, doc).Return(nil)
	f.notifier.On("Notify", mock.Anything, NotifyTitle, "Comic One has been updated to chapter Ch 10 (2/3).").Return(nil)

	report := f.dispatcher([]string{"a@example.com", "b@example.com", "c@example.com"}, false).
		Dispatch(context.Background(), []ingestion.Element{e})

	f.mailer.AssertExpectations(t)
	f.notifier.AssertExpectations(t)

	// Receivers are served in configured order.
	require.Len(t, f.mailer.Calls, 3)
	assert.Equal(t, "a@example.com", f.mailer.Calls[0].Arguments.String(1))
	assert.Equal(t, "b@example.com", f.mailer.Calls[1].Arguments.String(1))
	assert.Equal(t, "c@example.com", f.mailer.Calls[2].Arguments.String(1))

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.Equal(t, StatusSent, res.Status)
	assert.Equal(t, doc, res.Document)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 3, res.Total)
	assert.True(t, res.Marked)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 2, report.Deliveries)
	assert.True(t, f.isMarked(t, e))
}

func TestDispatch_AssemblyFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	good := element("1", "One", "10", "Ch 10")
	bad := element("2", "Two", "20", "Ch 20")
	f.assembler.fail = map[string]error{"Two Ch 20 (20).pdf": errors.New("unsupported image format")}

	f.mailer.On("SendFile", mock.Anything, mock.Anything, AppName, filepath.Join(f.outDir, "One Ch 10 (10).pdf")).Return(nil)
	f.notifier.On("Notify", mock.Anything, NotifyTitle, mock.Anything).Return(nil)

	report := f.dispatcher([]string{"a@example.com", "b@example.com"}, false).
		Dispatch(context.Background(), []ingestion.Element{bad, good})

	f.mailer.AssertNumberOfCalls(t, "SendFile", 2)
	f.notifier.AssertNumberOfCalls(t, "Notify", 1)

	require.Len(t, report.Results, 2)
	assert.Equal(t, StatusFailed, report.Results[0].Status)
	assert.False(t, report.Results[0].Marked)
	assert.Equal(t, StatusSent, report.Results[1].Status)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Marked)

	assert.False(t, f.isMarked(t, bad), "a chapter without a document must be retried")
	assert.True(t, f.isMarked(t, good))
}

func TestDispatch_LearnModeOnlyMarks(t *testing.T) {
	f := newFixture(t)
	elements := []ingestion.Element{element("1", "One", "10", "Ch 10"), element("1", "One", "11", "Ch 11")}
	for i := range elements {
		elements[i].Images = nil
	}

	report := f.dispatcher([]string{"a@example.com"}, true).Dispatch(context.Background(), elements)

	f.mailer.AssertNotCalled(t, "SendFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.assembler.names)

	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 2, report.Marked)
	for _, e := range elements {
		assert.True(t, f.isMarked(t, e))
	}
}

func TestDispatch_NotifyFailureDoesNotBlockMark(t *testing.T) {
	f := newFixture(t)
	e := element("1", "One", "10", "Ch 10")
	f.mailer.On("SendFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bark down"))

	report := f.dispatcher([]string{"a@example.com"}, false).Dispatch(context.Background(), []ingestion.Element{e})

	assert.Equal(t, 1, report.Marked)
	assert.True(t, f.isMarked(t, e))
}

func TestDispatch_MarkFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("SendFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	d := NewDispatcher(Options{
		Receivers: []string{"a@example.com"},
		Scale:     1,
		OutputDir: f.outDir,
		Logger:    quietLogger(),
		Marks:     brokenStore{},
		Mailer:    f.mailer,
		Assembler: f.assembler,
		Notifier:  f.notifier,
	})
	report := d.Dispatch(context.Background(), []ingestion.Element{element("1", "One", "10", "Ch 10")})

	require.Len(t, report.Results, 1)
	assert.Equal(t, StatusSent, report.Results[0].Status)
	assert.False(t, report.Results[0].Marked)
	assert.Zero(t, report.Marked)
}

func TestDispatch_CustomTemplateAndNoReceivers(t *testing.T) {
	f := newFixture(t)
	f.notifier.On("Notify", mock.Anything, NotifyTitle, "One/Ch 10: 0 of 0").Return(nil)

	d := f.dispatcher(nil, false)
	d.opts.Template = "%comic%/%chapter%: %success% of %total%"
	d.Dispatch(context.Background(), []ingestion.Element{element("1", "One", "10", "Ch 10")})

	f.notifier.AssertExpectations(t)
	f.mailer.AssertNotCalled(t, "SendFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_NilNotifierIsAllowed(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("SendFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	d := NewDispatcher(Options{
		Receivers: []string{"a@example.com"},
		Scale:     1,
		OutputDir: f.outDir,
		Logger:    quietLogger(),
		Marks:     f.marks,
		Mailer:    f.mailer,
		Assembler: f.assembler,
	})
	report := d.Dispatch(context.Background(), []ingestion.Element{element("1", "One", "10", "Ch 10")})
	assert.Equal(t, 1, report.Deliveries)
}

func writePages(t *testing.T, dir, prefix string, n int) []string {
	t.Helper()
	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, prefix+"_"+string(rune('0'+i))+".png")
		f, err := os.Create(path)
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 20, 30))))
		require.NoError(t, f.Close())
		paths = append(paths, path)
	}
	return paths
}

func TestDispatch_SameTitledChaptersKeepSeparateDocuments(t *testing.T) {
	f := newFixture(t)
	pages := t.TempDir()
	short := element("m", "Title", "c-1", "Ch. 5")
	short.SourceTag = "mangadex"
	short.Images = writePages(t, pages, "short", 1)
	long := element("m", "Title", "c-2", "Ch. 5")
	long.SourceTag = "mangadex"
	long.Images = writePages(t, pages, "long", 3)

	mailer := &pageCountingMailer{pages: map[string][]int{}}
	receivers := []string{"a@example.com", "b@example.com", "c@example.com"}
	report := NewDispatcher(Options{
		Receivers: receivers,
		Scale:     0.9,
		OutputDir: f.outDir,
		Logger:    quietLogger(),
		Marks:     f.marks,
		Mailer:    mailer,
		Assembler: document.NewAssembler(),
	}).Dispatch(context.Background(), []ingestion.Element{short, long})

	require.Len(t, report.Results, 2)
	shortDoc := filepath.Join(f.outDir, "Title Ch. 5 (c-1).pdf")
	longDoc := filepath.Join(f.outDir, "Title Ch. 5 (c-2).pdf")
	assert.Equal(t, shortDoc, report.Results[0].Document)
	assert.Equal(t, longDoc, report.Results[1].Document)

	assert.Equal(t, []int{1, 1, 1}, mailer.pages[shortDoc])
	assert.Equal(t, []int{3, 3, 3}, mailer.pages[longDoc])
	assert.Equal(t, 6, report.Deliveries)
}

func TestDocumentName(t *testing.T) {
	assert.Equal(t, "One Ch 10 (10).pdf", DocumentName(element("1", "One", "10", "Ch 10")))
}

func TestDispatch_InterruptedRunLeavesChaptersUnmarked(t *testing.T) {
	f := newFixture(t)
	elements := []ingestion.Element{element("1", "One", "10", "Ch 10"), element("1", "One", "11", "Ch 11")}
	f.mailer.On("SendFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(context.Canceled)
	f.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return(context.Canceled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := f.dispatcher([]string{"a@example.com", "b@example.com"}, false).Dispatch(ctx, elements)

	require.Len(t, report.Results, 2)
	for i, res := range report.Results {
		assert.Equal(t, StatusUndelivered, res.Status)
		assert.Zero(t, res.Success)
		assert.False(t, res.Marked)
		assert.False(t, f.isMarked(t, elements[i]), "the chapter must be retried next run")
	}
	assert.Zero(t, report.Marked)
	assert.Equal(t, 2, report.Undelivered)
}

func TestDispatch_NoAcceptedMailIsUndelivered(t *testing.T) {
	f := newFixture(t)
	e := element("1", "One", "10", "Ch 10")
	f.mailer.On("SendFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("relay down"))
	f.notifier.On("Notify", mock.Anything, NotifyTitle, "Comic One has been updated to chapter Ch 10 (0/2).").Return(nil)

	report := f.dispatcher([]string{"a@example.com", "b@example.com"}, false).
		Dispatch(context.Background(), []ingestion.Element{e})

	f.notifier.AssertExpectations(t)
	require.Len(t, report.Results, 1)
	assert.Equal(t, StatusUndelivered, report.Results[0].Status)
	assert.Equal(t, 1, report.Undelivered)
	assert.Zero(t, report.Sent)
	assert.True(t, f.isMarked(t, e))
}

func TestRenderNotification(t *testing.T) {
	assert.Equal(t,
		"Comic One has been updated to chapter Ch 10 (2/3).",
		RenderNotification("", "One", "Ch 10", 2, 3))
	assert.Equal(t,
		"One Ch 10 One",
		RenderNotification("%comic% %chapter% %comic%", "One", "Ch 10", 0, 0))
	assert.Equal(t, "no placeholders", RenderNotification("no placeholders", "a", "b", 1, 1))
}
