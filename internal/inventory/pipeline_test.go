package inventory

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/freshsnap/internal/capture"
	"github.com/zombor/freshsnap/internal/recognition"
)

// mockStore is a mock implementation of Store
type mockStore struct {
	mu       sync.Mutex
	items    []Item
	settings Settings
	addErr   error
	nextID   int
}

func newMockStore() *mockStore {
	return &mockStore{settings: DefaultSettings()}
}

func (m *mockStore) Add(item Item) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return Item{}, m.addErr
	}
	if item.ID == "" {
		m.nextID++
		item.ID = string(rune('a' + m.nextID - 1))
	}
	if err := item.Validate(); err != nil {
		return Item{}, err
	}
	m.items = append(m.items, item)
	return item, nil
}

func (m *mockStore) Get(id string) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.items {
		if item.ID == id {
			return item, nil
		}
	}
	return Item{}, ErrNotFound
}

func (m *mockStore) Update(id string, patch ItemPatch) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, item := range m.items {
		if item.ID == id {
			updated := patch.apply(item)
			if err := updated.Validate(); err != nil {
				return Item{}, err
			}
			m.items[i] = updated
			return updated, nil
		}
	}
	return Item{}, ErrNotFound
}

func (m *mockStore) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, item := range m.items {
		if item.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockStore) List() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Item(nil), m.items...)
}

func (m *mockStore) SaveSettings(settings Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := settings.Validate(); err != nil {
		return err
	}
	m.settings = settings
	return nil
}

func (m *mockStore) LoadSettings() (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings, nil
}

func (m *mockStore) Close() error {
	return nil
}

// mockRecognizer is a mock implementation of recognition.Recognizer. When
// release is set, Recognize blocks until the channel is closed or the context
// is cancelled.
type mockRecognizer struct {
	candidates []recognition.Candidate
	err        error
	release    chan struct{}
}

func (m *mockRecognizer) Recognize(ctx context.Context, imageJPEG []byte) ([]recognition.Candidate, error) {
	if m.release != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.release:
		}
	}
	return m.candidates, m.err
}

func (m *mockRecognizer) Close() error {
	return nil
}

// mockCoordinator is a mock implementation of capture.Coordinator
type mockCoordinator struct {
	image []byte
	err   error
}

func (m *mockCoordinator) AcquireImage(ctx context.Context) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.image, nil
}

// fixedTimeSource pins the clock for deterministic commits.
type fixedTimeSource struct {
	now time.Time
}

func (f fixedTimeSource) Now() time.Time {
	return f.now
}

var _ = Describe("Pipeline", func() {
	var (
		store       *mockStore
		recognizer  *mockRecognizer
		coordinator *mockCoordinator
		clock       fixedTimeSource
		pipeline    *Pipeline
	)

	BeforeEach(func() {
		store = newMockStore()
		recognizer = &mockRecognizer{
			candidates: []recognition.Candidate{
				{Name: "Milk", ExpiryDate: "2024-01-20", Category: "food", Confidence: 0.9, Reasoning: "date printed on cap"},
			},
		}
		coordinator = &mockCoordinator{image: []byte("jpeg-bytes")}
		clock = fixedTimeSource{now: time.Date(2024, time.January, 15, 10, 0, 0, 0, time.Local)}
		pipeline = NewPipelineWithDeps(store, recognizer, clock)
	})

	Describe("Start", func() {
		When("capture and recognition succeed", func() {
			It("should reach the reviewing state with the candidates", func() {
				token, err := pipeline.Start(context.Background(), coordinator)
				Expect(err).NotTo(HaveOccurred())

				candidates, err := pipeline.Wait(context.Background(), token)
				Expect(err).NotTo(HaveOccurred())
				Expect(candidates).To(HaveLen(1))
				Expect(candidates[0].Name).To(Equal("Milk"))
				Expect(pipeline.State()).To(Equal(StateReviewing))
			})

			It("should expose the candidates while reviewing", func() {
				token, err := pipeline.Start(context.Background(), coordinator)
				Expect(err).NotTo(HaveOccurred())
				_, err = pipeline.Wait(context.Background(), token)
				Expect(err).NotTo(HaveOccurred())

				heldToken, held := pipeline.Candidates()
				Expect(heldToken).To(Equal(token))
				Expect(held).To(HaveLen(1))
			})

			It("should normalize unknown candidate categories", func() {
				recognizer.candidates = []recognition.Candidate{
					{Name: "Mystery", ExpiryDate: "2024-01-20", Category: "produce"},
				}
				token, err := pipeline.Start(context.Background(), coordinator)
				Expect(err).NotTo(HaveOccurred())

				candidates, err := pipeline.Wait(context.Background(), token)
				Expect(err).NotTo(HaveOccurred())
				Expect(candidates[0].Category).To(Equal("other"))
			})
		})

		When("the capture is cancelled", func() {
			BeforeEach(func() {
				coordinator.err = capture.ErrCancelled
			})

			It("should return ErrCancelled", func() {
				_, err := pipeline.Start(context.Background(), coordinator)
				Expect(err).To(MatchError(capture.ErrCancelled))
			})

			It("should return to idle", func() {
				pipeline.Start(context.Background(), coordinator)
				Expect(pipeline.State()).To(Equal(StateIdle))
			})
		})

		When("the capture fails", func() {
			BeforeEach(func() {
				coordinator.err = errors.New("device unavailable")
			})

			It("should return the error and go idle", func() {
				_, err := pipeline.Start(context.Background(), coordinator)
				Expect(err).To(HaveOccurred())
				Expect(pipeline.State()).To(Equal(StateIdle))
			})
		})

		When("recognition fails", func() {
			BeforeEach(func() {
				recognizer.candidates = nil
				recognizer.err = errors.New("provider unavailable")
			})

			It("should surface ErrRecognitionFailed from Wait", func() {
				token, err := pipeline.Start(context.Background(), coordinator)
				Expect(err).NotTo(HaveOccurred())

				_, err = pipeline.Wait(context.Background(), token)
				Expect(err).To(MatchError(ErrRecognitionFailed))
			})

			It("should return to idle", func() {
				token, _ := pipeline.Start(context.Background(), coordinator)
				pipeline.Wait(context.Background(), token)
				Expect(pipeline.State()).To(Equal(StateIdle))
			})
		})

		When("a second capture starts while one is in flight", func() {
			BeforeEach(func() {
				recognizer.release = make(chan struct{})
			})

			It("should supersede the first session", func() {
				first, err := pipeline.Start(context.Background(), coordinator)
				Expect(err).NotTo(HaveOccurred())

				second, err := pipeline.Start(context.Background(), coordinator)
				Expect(err).NotTo(HaveOccurred())
				Expect(second).To(BeNumerically(">", first))

				_, err = pipeline.Wait(context.Background(), first)
				Expect(err).To(MatchError(ErrStaleSession))

				close(recognizer.release)
				_, err = pipeline.Wait(context.Background(), second)
				Expect(err).NotTo(HaveOccurred())
			})
		})
	})

	Describe("Cancel", func() {
		When("recognition is in flight", func() {
			BeforeEach(func() {
				recognizer.release = make(chan struct{})
			})

			It("should invalidate the session and go idle", func() {
				token, err := pipeline.Start(context.Background(), coordinator)
				Expect(err).NotTo(HaveOccurred())

				pipeline.Cancel()
				Expect(pipeline.State()).To(Equal(StateIdle))

				_, err = pipeline.Wait(context.Background(), token)
				Expect(err).To(MatchError(ErrStaleSession))
			})

			It("should drop the late recognition response", func() {
				_, err := pipeline.Start(context.Background(), coordinator)
				Expect(err).NotTo(HaveOccurred())

				pipeline.Cancel()
				close(recognizer.release)

				Consistently(pipeline.State).Should(Equal(StateIdle))
				Expect(store.List()).To(BeEmpty())
			})
		})

		When("the pipeline is idle", func() {
			It("should be a no-op", func() {
				pipeline.Cancel()
				Expect(pipeline.State()).To(Equal(StateIdle))
			})
		})
	})

	Describe("Discard", func() {
		var token uint64

		BeforeEach(func() {
			var err error
			token, err = pipeline.Start(context.Background(), coordinator)
			Expect(err).NotTo(HaveOccurred())
			_, err = pipeline.Wait(context.Background(), token)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should drop the candidates and go idle", func() {
			Expect(pipeline.Discard(token)).NotTo(HaveOccurred())
			Expect(pipeline.State()).To(Equal(StateIdle))
			Expect(store.List()).To(BeEmpty())
		})

		It("should reject a stale token", func() {
			Expect(pipeline.Discard(token + 1)).To(MatchError(ErrStaleSession))
		})

		It("should reject a second discard", func() {
			Expect(pipeline.Discard(token)).NotTo(HaveOccurred())
			Expect(pipeline.Discard(token)).To(MatchError(ErrBadState))
		})
	})

	Describe("Commit", func() {
		var token uint64

		BeforeEach(func() {
			var err error
			token, err = pipeline.Start(context.Background(), coordinator)
			Expect(err).NotTo(HaveOccurred())
			_, err = pipeline.Wait(context.Background(), token)
			Expect(err).NotTo(HaveOccurred())
		})

		When("the reviewed candidates are valid", func() {
			var (
				reviewed []recognition.Candidate
				added    []Item
				err      error
			)

			BeforeEach(func() {
				reviewed = []recognition.Candidate{
					{Name: "Milk", ExpiryDate: "2024-01-20", Category: "food", Reasoning: "date printed on cap"},
					{Name: "Aspirin", Category: "medicine"},
				}
			})

			JustBeforeEach(func() {
				added, err = pipeline.Commit(token, reviewed)
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should store every candidate", func() {
				Expect(added).To(HaveLen(2))
				Expect(store.List()).To(HaveLen(2))
			})

			It("should carry the recognized expiry date", func() {
				Expect(added[0].ExpiryDate).To(Equal(NewDate(2024, time.January, 20)))
				Expect(added[0].LowConfidence).To(BeFalse())
			})

			It("should default a missing expiry date to today and flag it", func() {
				Expect(added[1].ExpiryDate).To(Equal(NewDate(2024, time.January, 15)))
				Expect(added[1].LowConfidence).To(BeTrue())
			})

			It("should use the configured notify offset", func() {
				Expect(added[0].NotifyDaysBefore).To(Equal(DefaultSettings().DefaultNotifyDays))
			})

			It("should carry the reasoning as the description", func() {
				Expect(added[0].Description).To(Equal("date printed on cap"))
			})

			It("should return to idle", func() {
				Expect(pipeline.State()).To(Equal(StateIdle))
			})
		})

		When("a reviewed candidate is invalid", func() {
			It("should return a validation error and stay reviewing", func() {
				_, err := pipeline.Commit(token, []recognition.Candidate{
					{Name: "Milk", ExpiryDate: "2024-01-20", Category: "food"},
					{Name: "", ExpiryDate: "2024-01-20", Category: "food"},
				})
				var verr *ValidationError
				Expect(errors.As(err, &verr)).To(BeTrue())
				Expect(pipeline.State()).To(Equal(StateReviewing))
			})

			It("should not touch the store", func() {
				pipeline.Commit(token, []recognition.Candidate{{Name: ""}})
				Expect(store.List()).To(BeEmpty())
			})
		})

		When("the store rejects a write", func() {
			BeforeEach(func() {
				store.addErr = errors.New("disk full")
			})

			It("should return the error and go idle", func() {
				_, err := pipeline.Commit(token, []recognition.Candidate{
					{Name: "Milk", ExpiryDate: "2024-01-20", Category: "food"},
				})
				Expect(err).To(HaveOccurred())
				Expect(pipeline.State()).To(Equal(StateIdle))
			})
		})

		When("the token is stale", func() {
			It("should return ErrStaleSession", func() {
				_, err := pipeline.Commit(token+1, nil)
				Expect(err).To(MatchError(ErrStaleSession))
			})
		})

		When("nothing is under review", func() {
			It("should return ErrBadState", func() {
				Expect(pipeline.Discard(token)).NotTo(HaveOccurred())
				_, err := pipeline.Commit(token, nil)
				Expect(err).To(MatchError(ErrBadState))
			})
		})
	})
})
