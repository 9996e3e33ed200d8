package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/goleak"

	"shopping-assistant-pipeline/internal/models"
)

// leakOptions ignores the stats worker that the genai SDK's opencensus
// dependency starts at init.
var leakOptions = []goleak.Option{
	goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
}

const (
	interpretMarker  = "Analyze this shopping query"
	specMarker       = "Respond with JSON using exactly these keys"
	rankingMarker    = "Rate how well each product"
	describeMarker   = "PRODUCT 1 DESCRIPTION:"
	recommendMarker  = "Why Recommended:"
	comparisonMarker = "most important facts"
)

var errUpstream = errors.New("upstream unavailable")

type scriptedReply struct {
	text string
	err  error
}

// scriptedGenerator answers by the first marker found in the user prompt.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies map[string]scriptedReply
	prompts []string
	panicOn string
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{replies: make(map[string]scriptedReply)}
}

func (g *scriptedGenerator) on(marker, text string) *scriptedGenerator {
	g.replies[marker] = scriptedReply{text: text}
	return g
}

func (g *scriptedGenerator) fail(marker string) *scriptedGenerator {
	g.replies[marker] = scriptedReply{err: errUpstream}
	return g
}

func (g *scriptedGenerator) Chat(_ context.Context, messages []Message) (string, error) {
	prompt := messages[len(messages)-1].Content

	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)

	if g.panicOn != "" && strings.Contains(prompt, g.panicOn) {
		panic("generator exploded")
	}

	for _, marker := range []string{interpretMarker, specMarker, rankingMarker, describeMarker, comparisonMarker, recommendMarker} {
		if !strings.Contains(prompt, marker) {
			continue
		}
		if reply, ok := g.replies[marker]; ok {
			return reply.text, reply.err
		}
		return "", nil
	}
	return "", nil
}

func (g *scriptedGenerator) promptsWith(marker string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var matched []string
	for _, p := range g.prompts {
		if strings.Contains(p, marker) {
			matched = append(matched, p)
		}
	}
	return matched
}

type fakeSource struct {
	results []models.RawCandidate
	err     error
	queries []string
}

func (s *fakeSource) Search(_ context.Context, query string) ([]models.RawCandidate, error) {
	s.queries = append(s.queries, query)
	return s.results, s.err
}

type fakeContent struct {
	mu        sync.Mutex
	fragments map[string][]string
	failFor   map[string]bool
	calls     int
}

func (c *fakeContent) Search(_ context.Context, query string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failFor[query] {
		return nil, errUpstream
	}
	return c.fragments[query], nil
}

type fakeScraper struct {
	mu    sync.Mutex
	pages map[string]string
	urls  []string
}

func (s *fakeScraper) Scrape(_ context.Context, url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, url)
	if page, ok := s.pages[url]; ok {
		return page, nil
	}
	return "", errUpstream
}

type recordingStore struct {
	mu      sync.Mutex
	updates []models.StageUpdate
	stored  map[string]*models.WorkflowState
}

func newRecordingStore() *recordingStore {
	return &recordingStore{stored: make(map[string]*models.WorkflowState)}
}

func (s *recordingStore) StoreWorkflowState(_ context.Context, state *models.WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored[state.ID] = state
	return nil
}

func (s *recordingStore) GetWorkflowState(_ context.Context, id string) (*models.WorkflowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.stored[id]; ok {
		return state, nil
	}
	return nil, models.ErrWorkflowNotFound
}

func (s *recordingStore) PublishStageUpdate(_ context.Context, update *models.StageUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, *update)
	return nil
}

func (s *recordingStore) HealthCheck(context.Context) error { return nil }

func floatPtr(f float64) *float64 { return &f }

func intPtr(i int) *int { return &i }
