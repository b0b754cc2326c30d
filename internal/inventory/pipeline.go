package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/zombor/freshsnap/internal/capture"
	"github.com/zombor/freshsnap/internal/recognition"
)

var (
	// ErrRecognitionFailed is returned when the recognition provider call
	// fails. The session is gone; the user may start a new capture.
	ErrRecognitionFailed = errors.New("recognition failed")

	// ErrStaleSession is returned for operations referencing a superseded or
	// cancelled scan session.
	ErrStaleSession = errors.New("stale scan session")

	// ErrBadState is returned for operations not allowed in the pipeline's
	// current state.
	ErrBadState = errors.New("operation not allowed in current state")
)

// PipelineState is a phase of the capture-to-confirmation flow.
type PipelineState int

const (
	StateIdle PipelineState = iota
	StateCapturing
	StateRecognizing
	StateReviewing
	StateCommitting
)

func (s PipelineState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateRecognizing:
		return "recognizing"
	case StateReviewing:
		return "reviewing"
	case StateCommitting:
		return "committing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s PipelineState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type systemTimeSource struct{}

func (systemTimeSource) Now() time.Time {
	return time.Now()
}

// Pipeline orchestrates Capture -> Recognize -> Review -> Commit/Cancel. It
// is the sole writer path for AI-sourced items. One session is active at a
// time; starting a new capture supersedes any in-flight session, and each
// session carries a monotonically increasing token so late responses from a
// superseded or cancelled session are detected and dropped.
type Pipeline struct {
	store      Store
	recognizer recognition.Recognizer
	timeSource TimeSource

	mu         sync.Mutex
	state      PipelineState
	session    uint64
	cancel     context.CancelFunc
	candidates []recognition.Candidate
	failure    error
	done       chan struct{} // non-nil while the current session is in flight
}

// NewPipeline creates a Pipeline with the system clock.
func NewPipeline(store Store, recognizer recognition.Recognizer) *Pipeline {
	return NewPipelineWithDeps(store, recognizer, systemTimeSource{})
}

// NewPipelineWithDeps creates a Pipeline with a custom time source for
// testing.
func NewPipelineWithDeps(store Store, recognizer recognition.Recognizer, timeSource TimeSource) *Pipeline {
	return &Pipeline{
		store:      store,
		recognizer: recognizer,
		timeSource: timeSource,
	}
}

// State returns the current pipeline state.
func (p *Pipeline) State() PipelineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Candidates returns the current session token and, while reviewing, a copy
// of the held candidates.
func (p *Pipeline) Candidates() (uint64, []recognition.Candidate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateReviewing {
		return p.session, nil
	}
	return p.session, slices.Clone(p.candidates)
}

// Start begins a new scan session: it acquires an image from the coordinator
// and launches recognition asynchronously, returning the session token. Any
// prior in-flight session is superseded. A user cancellation during capture
// returns capture.ErrCancelled and the pipeline is back at idle.
func (p *Pipeline) Start(ctx context.Context, coordinator capture.Coordinator) (uint64, error) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
	p.session++
	token := p.session
	p.state = StateCapturing
	p.candidates = nil
	p.failure = nil
	done := make(chan struct{})
	p.done = done
	p.mu.Unlock()

	image, err := coordinator.AcquireImage(ctx)

	p.mu.Lock()
	if p.session != token {
		p.mu.Unlock()
		return token, ErrStaleSession
	}
	if err != nil {
		p.state = StateIdle
		p.failure = err
		close(done)
		p.done = nil
		p.mu.Unlock()
		if errors.Is(err, capture.ErrCancelled) {
			return token, capture.ErrCancelled
		}
		return token, fmt.Errorf("acquiring image: %w", err)
	}

	p.state = StateRecognizing
	rctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	go func() {
		candidates, rerr := p.recognizer.Recognize(rctx, image)
		p.deliver(token, candidates, rerr)
	}()
	return token, nil
}

// deliver applies a recognition result to the session it belongs to.
// Responses for a superseded or cancelled token are dropped without touching
// any state.
func (p *Pipeline) deliver(token uint64, candidates []recognition.Candidate, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if token != p.session || p.state != StateRecognizing {
		slog.Debug("Ignoring stale recognition response", "session", token)
		return
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}

	if err != nil {
		slog.Error("Recognition failed", "session", token, "error", err)
		p.state = StateIdle
		p.failure = fmt.Errorf("%w: %v", ErrRecognitionFailed, err)
	} else {
		for i := range candidates {
			candidates[i].Category = string(ParseCategory(candidates[i].Category))
		}
		p.candidates = candidates
		p.state = StateReviewing
	}

	if p.done != nil {
		close(p.done)
		p.done = nil
	}
}

// Wait blocks until the session identified by token leaves the in-flight
// phase, then returns its candidates for review. It returns
// ErrRecognitionFailed when the provider call failed, ErrStaleSession when
// the session was superseded or cancelled, and capture.ErrCancelled when the
// capture was abandoned.
func (p *Pipeline) Wait(ctx context.Context, token uint64) ([]recognition.Candidate, error) {
	p.mu.Lock()
	if token != p.session {
		p.mu.Unlock()
		return nil, ErrStaleSession
	}
	done := p.done
	p.mu.Unlock()

	if done != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-done:
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if token != p.session {
		return nil, ErrStaleSession
	}
	if p.failure != nil {
		return nil, p.failure
	}
	if p.state != StateReviewing {
		return nil, ErrBadState
	}
	return slices.Clone(p.candidates), nil
}

// Cancel aborts the active session, whatever phase it is in. The recognition
// context is cancelled promptly so provider resources are released, the
// token is invalidated, and the pipeline returns to idle. The store is never
// touched.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateIdle {
		return
	}
	p.session++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.state = StateIdle
	p.candidates = nil
	p.failure = nil
	if p.done != nil {
		close(p.done)
		p.done = nil
	}
	slog.Debug("Cancelled scan session", "session", p.session-1)
}

// Discard drops the reviewed candidates without committing anything.
func (p *Pipeline) Discard(token uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if token != p.session {
		return ErrStaleSession
	}
	if p.state != StateReviewing {
		return ErrBadState
	}
	p.state = StateIdle
	p.candidates = nil
	return nil
}

// Commit promotes the reviewed candidates to stored items. Every candidate
// is mapped and validated before the first store write, so a validation
// failure leaves the store untouched and returns the user to review. A
// candidate without an expiry date gets today's date and the low-confidence
// flag.
func (p *Pipeline) Commit(token uint64, reviewed []recognition.Candidate) ([]Item, error) {
	p.mu.Lock()
	if token != p.session {
		p.mu.Unlock()
		return nil, ErrStaleSession
	}
	if p.state != StateReviewing {
		p.mu.Unlock()
		return nil, ErrBadState
	}
	p.state = StateCommitting
	p.mu.Unlock()

	now := p.timeSource.Now()
	notifyDays := DefaultSettings().DefaultNotifyDays
	if settings, err := p.store.LoadSettings(); err == nil {
		notifyDays = settings.DefaultNotifyDays
	}

	items := make([]Item, 0, len(reviewed))
	for _, c := range reviewed {
		item, err := itemFromCandidate(c, now, notifyDays)
		if err != nil {
			p.setState(token, StateReviewing)
			return nil, err
		}
		items = append(items, item)
	}

	added := make([]Item, 0, len(items))
	for _, item := range items {
		stored, err := p.store.Add(item)
		if err != nil {
			p.setState(token, StateIdle)
			return nil, fmt.Errorf("adding item %q: %w", item.Name, err)
		}
		added = append(added, stored)
	}

	p.mu.Lock()
	if token == p.session {
		p.state = StateIdle
		p.candidates = nil
	}
	p.mu.Unlock()

	slog.Info("Committed scan session", "session", token, "items", len(added))
	return added, nil
}

func (p *Pipeline) setState(token uint64, state PipelineState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if token == p.session {
		p.state = state
	}
}

func itemFromCandidate(c recognition.Candidate, now time.Time, notifyDays int) (Item, error) {
	var expiry Date
	lowConfidence := false
	if c.ExpiryDate != "" {
		if parsed, err := ParseDate(c.ExpiryDate); err == nil {
			expiry = parsed
		}
	}
	if expiry.IsZero() {
		expiry = DateOf(now)
		lowConfidence = true
	}

	category := ParseCategory(c.Category)
	item := Item{
		Name:             strings.TrimSpace(c.Name),
		Category:         category,
		ExpiryDate:       expiry,
		Description:      strings.TrimSpace(c.Reasoning),
		AddedDate:        now,
		NotifyDaysBefore: notifyDays,
		Icon:             defaultIcon(category),
		LowConfidence:    lowConfidence,
	}
	if err := item.Validate(); err != nil {
		return Item{}, err
	}
	return item, nil
}

func defaultIcon(category Category) string {
	if category == CategoryFood {
		return "🍎"
	}
	return "📦"
}
