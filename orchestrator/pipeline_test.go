package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	cfg "github.com/maastricht-university/transcript-pipeline/config"
	"github.com/maastricht-university/transcript-pipeline/models"
	"github.com/maastricht-university/transcript-pipeline/progress"
	"github.com/maastricht-university/transcript-pipeline/store"
	"github.com/maastricht-university/transcript-pipeline/transcribe"
)

type fakeRecognizer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRecognizer) Recognize(_ context.Context, _ string, w models.TimeWindow, opts transcribe.RecognizeOptions) (models.RecognitionResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return models.RecognitionResult{}, f.err
	}
	return models.RecognitionResult{
		Language:   opts.Language,
		Text:       "hello world.",
		Tokens:     []string{"hello", " world", "."},
		Timestamps: []float64{0.5, 0.9, 1.2},
	}, nil
}

var promptID = regexp.MustCompile(`"id":"(seg-\d+)"`)

type fakeGenerator struct {
	fail error
}

func (f fakeGenerator) Generate(_ context.Context, prompt string, _ int) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	var items []map[string]string
	for _, m := range promptID.FindAllStringSubmatch(prompt, -1) {
		items = append(items, map[string]string{"id": m[1], "text": "fr " + m[1]})
	}
	b, _ := json.Marshal(items)
	return string(b), nil
}

type events struct {
	mu  sync.Mutex
	evs []models.JobProgressEvent
}

func (e *events) Emit(ev models.JobProgressEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evs = append(e.evs, ev)
	return nil
}

func (e *events) last(t *testing.T) models.JobProgressEvent {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.evs) == 0 {
		t.Fatal("no events")
	}
	return e.evs[len(e.evs)-1]
}

func (e *events) terminals() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.evs {
		if ev.Status.IsTerminal() {
			n++
		}
	}
	return n
}

func testConfig(t *testing.T) *cfg.Root {
	c := cfg.Default()
	c.Translate.TargetLang = "fr"
	c.Translate.RetryDelaysMs = []int{}
	c.Paths.Outputs = t.TempDir()
	return c
}

func newTestPipeline(t *testing.T, d Deps) (*Pipeline, *store.File, *events) {
	t.Helper()
	fs, err := store.NewFile(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ev := &events{}
	d.Store = fs
	d.Sink = ev
	return NewPipeline(testConfig(t), d), fs, ev
}

func seedTranscript(t *testing.T, s store.Store, mediaID string) {
	t.Helper()
	tr := &models.Transcript{
		MediaID:  mediaID,
		Language: "en",
		Segments: []models.Segment{
			{ID: "seg-1", Start: 0, End: 1, Text: "Good morning."},
			{ID: "seg-2", Start: 1, End: 2, Text: "  "},
			{ID: "seg-3", Start: 2, End: 3, Text: "Welcome back."},
		},
		GeneratedAt: time.Now().UTC(),
	}
	if err := s.SaveTranscript(context.Background(), mediaID, tr); err != nil {
		t.Fatal(err)
	}
}

func TestTranscribeStoresTranscript(t *testing.T) {
	rec := &fakeRecognizer{}
	p, fs, ev := newTestPipeline(t, Deps{Recognizer: rec})

	tr, err := p.Transcribe(context.Background(), TranscribeArgs{MediaID: "media-1", Source: "a.wav", DurationMs: 10_000, Language: "en"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Segments) == 0 || tr.Language != "en" || !strings.Contains(tr.Segments[0].Text, "world") {
		t.Errorf("transcript = %+v", tr)
	}
	if rec.calls != 1 {
		t.Errorf("recognizer calls = %d", rec.calls)
	}
	stored, err := fs.LoadTranscript(context.Background(), "media-1")
	if err != nil || stored.ID != tr.ID {
		t.Fatalf("stored = %+v, err = %v", stored, err)
	}

	last := ev.last(t)
	if last.Status != models.JobSucceeded || last.Progress != 1 || last.JobKind != models.JobTranscribe {
		t.Errorf("last event = %+v", last)
	}
	if !strings.HasPrefix(last.JobID, "job-") || ev.terminals() != 1 {
		t.Errorf("job id %q, terminals %d", last.JobID, ev.terminals())
	}
}

func TestTranscribeFailureEmitsFailed(t *testing.T) {
	p, fs, ev := newTestPipeline(t, Deps{Recognizer: &fakeRecognizer{err: errors.New("decoder crashed")}})

	_, err := p.Transcribe(context.Background(), TranscribeArgs{MediaID: "media-1", Source: "a.wav", DurationMs: 10_000})
	if err == nil {
		t.Fatal("expected error")
	}
	last := ev.last(t)
	if last.Status != models.JobFailed || last.Message == nil || !strings.Contains(*last.Message, "decoder crashed") {
		t.Errorf("last event = %+v", last)
	}
	if _, err := fs.LoadTranscript(context.Background(), "media-1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("transcript stored after failure: %v", err)
	}
}

func TestTranscribeRejectsBadMediaID(t *testing.T) {
	p, _, ev := newTestPipeline(t, Deps{Recognizer: &fakeRecognizer{}})
	if _, err := p.Transcribe(context.Background(), TranscribeArgs{MediaID: "../x", Source: "a.wav"}); err == nil {
		t.Fatal("bad media id accepted")
	}
	if len(ev.evs) != 0 {
		t.Error("events emitted for a rejected request")
	}
}

func TestTranslateBuildsTracks(t *testing.T) {
	p, fs, ev := newTestPipeline(t, Deps{Generator: fakeGenerator{}})
	seedTranscript(t, fs, "media-1")

	doc, err := p.Translate(context.Background(), TranslateArgs{MediaID: "media-1"})
	if err != nil {
		t.Fatal(err)
	}

	var ids []string
	for _, tr := range doc.Tracks {
		ids = append(ids, tr.ID)
	}
	if strings.Join(ids, ",") != "original,fr,bilingual" {
		t.Fatalf("tracks = %v", ids)
	}
	fr, _ := doc.Track("fr")
	if fr.Kind != models.KindAITranslate || len(fr.Segments) != 2 || fr.Segments[1].Text != "fr seg-3" {
		t.Errorf("fr track = %+v", fr)
	}
	bi, _ := doc.Track(models.BilingualTrackID)
	if bi.Language != "en+fr" || bi.Kind != models.KindDerived || bi.Segments[0].Text != "Good morning.\nfr seg-1" {
		t.Errorf("bilingual track = %+v", bi)
	}
	if doc.Translation == nil || doc.Translation.Coverage != 1 || doc.Translation.TotalSegments != 2 {
		t.Errorf("translation meta = %+v", doc.Translation)
	}

	stored, err := fs.LoadSubtitles(context.Background(), "media-1")
	if err != nil || len(stored.Tracks) != 3 {
		t.Fatalf("stored = %+v, err = %v", stored, err)
	}
	if last := ev.last(t); last.Status != models.JobSucceeded || last.JobKind != models.JobSubtitle {
		t.Errorf("last event = %+v", last)
	}

	// A second target adds its own track and replaces the bilingual one.
	doc, err = p.Translate(context.Background(), TranslateArgs{MediaID: "media-1", TargetLang: "zh-CN"})
	if err != nil {
		t.Fatal(err)
	}
	ids = ids[:0]
	for _, tr := range doc.Tracks {
		ids = append(ids, tr.ID)
	}
	if strings.Join(ids, ",") != "original,fr,bilingual,zh" {
		t.Fatalf("tracks = %v", ids)
	}
	zh, _ := doc.Track("zh")
	bi, _ = doc.Track(models.BilingualTrackID)
	if zh.Label != "中文" || zh.Language != "zh-cn" || bi.Language != "en+zh-cn" {
		t.Errorf("zh = %+v, bilingual language = %q", zh, bi.Language)
	}
}

func TestTranslateWithoutTranscript(t *testing.T) {
	p, _, ev := newTestPipeline(t, Deps{Generator: fakeGenerator{}})
	if _, err := p.Translate(context.Background(), TranslateArgs{MediaID: "media-2"}); err == nil {
		t.Fatal("expected error")
	}
	if len(ev.evs) != 0 {
		t.Error("job started without a transcript")
	}
}

func TestTranslateTotalFailure(t *testing.T) {
	p, fs, ev := newTestPipeline(t, Deps{Generator: fakeGenerator{fail: errors.New("invalid api key")}})
	seedTranscript(t, fs, "media-1")

	_, err := p.Translate(context.Background(), TranslateArgs{MediaID: "media-1"})
	if err == nil || !strings.Contains(err.Error(), "invalid api key") {
		t.Fatalf("err = %v", err)
	}
	if last := ev.last(t); last.Status != models.JobFailed {
		t.Errorf("last event = %+v", last)
	}
	// The document built from the transcript is kept, without translated tracks.
	doc, err := fs.LoadSubtitles(context.Background(), "media-1")
	if err != nil || len(doc.Tracks) != 1 {
		t.Fatalf("doc = %+v, err = %v", doc, err)
	}
}

func TestExport(t *testing.T) {
	p, fs, ev := newTestPipeline(t, Deps{Generator: fakeGenerator{}})
	seedTranscript(t, fs, "media-1")
	if _, err := p.Translate(context.Background(), TranslateArgs{MediaID: "media-1"}); err != nil {
		t.Fatal(err)
	}

	out := t.TempDir()
	res, err := p.Export(context.Background(), ExportArgs{MediaID: "media-1", Dir: out, Name: "Week 1: Intro"})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(res.Dir) != out || !strings.HasPrefix(filepath.Base(res.Dir), "Week 1_ Intro_") {
		t.Errorf("dir = %s", res.Dir)
	}
	var names []string
	for _, f := range res.Files {
		names = append(names, filepath.Base(f))
	}
	sort.Strings(names)
	want := []string{
		"subtitles.bilingual.srt", "subtitles.bilingual.vtt",
		"subtitles.fr.srt", "subtitles.fr.vtt",
		"subtitles.original.srt", "subtitles.original.vtt",
		"transcript.srt", "transcript.txt", "transcript.vtt",
		"transcription.json",
	}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("files = %v", names)
	}
	srt, err := os.ReadFile(filepath.Join(res.Dir, "subtitles.fr.srt"))
	if err != nil || !strings.Contains(string(srt), "00:00:02,000 --> 00:00:03,000\nfr seg-3") {
		t.Errorf("fr srt = %q, err = %v", srt, err)
	}
	if last := ev.last(t); last.Status != models.JobSucceeded || last.JobKind != models.JobExport {
		t.Errorf("last event = %+v", last)
	}
}

func TestExportNothingStored(t *testing.T) {
	p, _, ev := newTestPipeline(t, Deps{})
	if _, err := p.Export(context.Background(), ExportArgs{MediaID: "media-9"}); err == nil {
		t.Fatal("expected error")
	}
	if last := ev.last(t); last.Status != models.JobFailed {
		t.Errorf("last event = %+v", last)
	}
}

var _ progress.Sink = (*events)(nil)
