package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmori/mailsift/internal/archive"
	"github.com/tmori/mailsift/internal/filter"
	"github.com/tmori/mailsift/internal/mailbox"
	"github.com/tmori/mailsift/internal/model"
	"github.com/tmori/mailsift/internal/normalize"
	"github.com/tmori/mailsift/internal/review"
	"github.com/tmori/mailsift/tests/testutil"
)

// fakeFetcher serves canned messages keyed by UID.
type fakeFetcher struct {
	uids     []uint32
	messages map[uint32]*model.ParsedMessage
	fetched  []uint32
}

func (f *fakeFetcher) SearchUIDs(_ context.Context, _ mailbox.SearchOptions) ([]uint32, error) {
	return f.uids, nil
}

func (f *fakeFetcher) FetchMessage(_ context.Context, uid uint32) (*model.ParsedMessage, error) {
	msg, ok := f.messages[uid]
	if !ok {
		return nil, fmt.Errorf("message UID %d not found", uid)
	}
	f.fetched = append(f.fetched, uid)
	return msg, nil
}

func plainMessage(uid uint32, subject, body string) *model.ParsedMessage {
	return &model.ParsedMessage{
		Envelope: model.Envelope{
			UID:     uid,
			Subject: subject,
			From:    "sender@example.jp",
			Date:    time.Date(2026, 1, 5, 9, 0, 0, 0, time.Local),
		},
		Root: &model.Part{
			MediaType: "multipart/mixed",
			Children: []*model.Part{
				{MediaType: "text/plain", Charset: "utf-8", Body: []byte(body)},
			},
		},
	}
}

func newTestPipeline(t *testing.T, f Fetcher, dataDir string) *Pipeline {
	t.Helper()

	opts := normalize.Options{ToHalfWidth: true, UnifyKana: true, TrimSpaces: true}
	engine := filter.NewEngine(filter.NewRules([]string{"exe"}, []string{"添付"}), opts, zerolog.Nop())

	return New(
		f,
		engine,
		archive.NewWriter(filepath.Join(dataDir, "archive"), zerolog.Nop()),
		review.NewRecorder(filepath.Join(dataDir, "review"), zerolog.Nop()),
		testutil.NewTestStore(t),
		zerolog.Nop(),
	)
}

func TestRun_ArchivesAndExcludes(t *testing.T) {
	dir := t.TempDir()

	excluded := plainMessage(2, "ご案内", "カタログを添付します。")
	fetcher := &fakeFetcher{
		uids: []uint32{1, 2},
		messages: map[uint32]*model.ParsedMessage{
			1: plainMessage(1, "業務連絡", "通常の連絡です。"),
			2: excluded,
		},
	}

	p := newTestPipeline(t, fetcher, dir)
	res, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.Archived != 1 || res.Excluded != 1 {
		t.Fatalf("expected 1 archived and 1 excluded, got %+v", res)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "archive"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one archive record, got %v (%v)", entries, err)
	}

	reviews, err := os.ReadDir(filepath.Join(dir, "review"))
	if err != nil || len(reviews) != 1 {
		t.Fatalf("expected one review file, got %v (%v)", reviews, err)
	}
}

func TestRun_SecondRunSkipsProcessed(t *testing.T) {
	dir := t.TempDir()

	fetcher := &fakeFetcher{
		uids: []uint32{1},
		messages: map[uint32]*model.ParsedMessage{
			1: plainMessage(1, "業務連絡", "通常の連絡です。"),
		},
	}

	p := newTestPipeline(t, fetcher, dir)
	if _, err := p.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	res, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Skipped != 1 || res.Archived != 0 {
		t.Fatalf("expected second run to skip, got %+v", res)
	}
	if len(fetcher.fetched) != 1 {
		t.Fatalf("expected single fetch across runs, got %v", fetcher.fetched)
	}
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()

	fetcher := &fakeFetcher{
		uids: []uint32{1},
		messages: map[uint32]*model.ParsedMessage{
			1: plainMessage(1, "ご案内", "カタログを添付します。"),
		},
	}

	p := newTestPipeline(t, fetcher, dir)
	res, err := p.Run(context.Background(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Archived != 0 || res.Excluded != 0 {
		t.Fatalf("dry run must not write, got %+v", res)
	}

	if _, err := os.Stat(filepath.Join(dir, "archive")); !os.IsNotExist(err) {
		t.Fatal("dry run must not create the archive directory")
	}

	// Dry run must not mark messages processed either.
	res, err = p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("follow-up run: %v", err)
	}
	if res.Excluded != 1 {
		t.Fatalf("expected follow-up run to process the message, got %+v", res)
	}
}

func TestRun_FetchFailureContinues(t *testing.T) {
	dir := t.TempDir()

	fetcher := &fakeFetcher{
		uids: []uint32{7, 1},
		messages: map[uint32]*model.ParsedMessage{
			1: plainMessage(1, "業務連絡", "通常の連絡です。"),
		},
	}

	p := newTestPipeline(t, fetcher, dir)
	res, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Failed != 1 || res.Archived != 1 {
		t.Fatalf("expected failure on UID 7 and archive of UID 1, got %+v", res)
	}
}

func TestRun_ArchivedBodyIsNoiseReduced(t *testing.T) {
	dir := t.TempDir()

	body := "本文です。\n-- \nTaro Yamada\nAcme Corp"
	fetcher := &fakeFetcher{
		uids:     []uint32{1},
		messages: map[uint32]*model.ParsedMessage{1: plainMessage(1, "件名", body)},
	}

	p := newTestPipeline(t, fetcher, dir)
	if _, err := p.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "archive"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one archive record: %v (%v)", entries, err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "archive", entries[0].Name()))
	if err != nil {
		t.Fatalf("reading record: %v", err)
	}
	if strings.Contains(string(data), "Acme Corp") {
		t.Fatalf("expected signature stripped from archived body:\n%s", data)
	}
	if !strings.Contains(string(data), "本文です。") {
		t.Fatalf("expected body content archived:\n%s", data)
	}
}
