package receipt

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockRecognizer is a mock OCR collaborator. When gates are set it blocks
// between started and release so tests can observe the extracting state.
type mockRecognizer struct {
	text    string
	err     error
	started chan struct{}
	release chan struct{}
}

func (m *mockRecognizer) Recognize(ctx context.Context, imageData []byte, contentType string) (string, error) {
	if m.started != nil {
		close(m.started)
		m.started = nil
	}
	if m.release != nil {
		<-m.release
	}
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

// mockExtractor is a mock completion-backed extractor
type mockExtractor struct {
	receipt *Receipt
	err     error
}

func (m *mockExtractor) Extract(ctx context.Context, rawText string) (*Receipt, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.receipt, nil
}

// mockStorage is a mock implementation of Storage
type mockStorage struct {
	files     map[string][]byte
	saveErr   error
	deleteErr error
}

func newMockStorage() *mockStorage {
	return &mockStorage{files: make(map[string][]byte)}
}

func (m *mockStorage) Save(filename string, data []byte) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.files[filename] = data
	return filename, nil
}

func (m *mockStorage) Get(path string) ([]byte, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, errors.New("capture not found")
	}
	return data, nil
}

func (m *mockStorage) Delete(path string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.files, path)
	return nil
}

// mockIDGenerator is a mock implementation of IDGenerator
type mockIDGenerator struct {
	id string
}

func (m *mockIDGenerator) Generate() string {
	return m.id
}

func newTestSession(recognizer *mockRecognizer, extractor *mockExtractor, storage *mockStorage) *Session {
	history := NewHistory()
	return NewSessionWithDeps(
		recognizer, extractor, storage,
		NewSettlerWithDeps(2, history, &mockTimeSource{now: time.Date(2025, 8, 27, 18, 30, 0, 0, time.UTC)}),
		history,
		&mockIDGenerator{id: "test-id-123"},
		time.Second,
	)
}

var _ = Describe("Session", func() {
	var (
		recognizer *mockRecognizer
		extractor  *mockExtractor
		storage    *mockStorage
		session    *Session
	)

	BeforeEach(func() {
		recognizer = &mockRecognizer{text: "Milk 20.00\nBread 30.00"}
		extractor = &mockExtractor{receipt: sampleReceipt()}
		storage = newMockStorage()
		session = newTestSession(recognizer, extractor, storage)
	})

	Describe("Process", func() {
		var (
			rec *Receipt
			err error
		)

		JustBeforeEach(func() {
			rec, err = session.Process(context.Background(), "receipt.jpg", []byte("fake image"), "image/jpeg")
		})

		When("every stage succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("moves the session to reviewing", func() {
				Expect(session.State()).To(Equal(StateReviewing))
			})

			It("returns the extracted receipt", func() {
				Expect(*rec.StoreName).To(Equal("Kiwi"))
				Expect(rec.Items).To(HaveLen(2))
			})

			It("loads the ledger with the receipt", func() {
				Expect(session.Total()).To(Equal(int64(5000)))
			})

			It("stores the capture with the generated ID prefix", func() {
				Expect(storage.files).To(HaveKey("test-id-123_receipt.jpg"))
			})
		})

		When("the capture payload is empty", func() {
			JustBeforeEach(func() {
				rec, err = session.Process(context.Background(), "receipt.jpg", nil, "image/jpeg")
			})

			It("reports a canceled capture", func() {
				Expect(err).To(MatchError(ErrCaptureCanceled))
			})

			It("returns the session to idle", func() {
				Expect(session.State()).To(Equal(StateIdle))
			})
		})

		When("the OCR stage fails", func() {
			var setupErr error

			BeforeEach(func() {
				setupErr = &NetworkError{Stage: "ocr", Err: errors.New("connection refused")}
				recognizer.err = setupErr
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(setupErr))
			})

			It("returns the session to idle", func() {
				Expect(session.State()).To(Equal(StateIdle))
			})

			It("cleans up the stored capture", func() {
				Expect(storage.files).To(BeEmpty())
			})
		})

		When("the OCR stage hits its deadline", func() {
			BeforeEach(func() {
				recognizer.err = context.DeadlineExceeded
			})

			It("surfaces a timeout for the ocr stage", func() {
				var timeoutErr *TimeoutError
				Expect(errors.As(err, &timeoutErr)).To(BeTrue())
				Expect(timeoutErr.Stage).To(Equal("ocr"))
			})

			It("returns the session to idle", func() {
				Expect(session.State()).To(Equal(StateIdle))
			})
		})

		When("the reply is malformed", func() {
			BeforeEach(func() {
				extractor.err = &MalformedReplyError{Err: errors.New("invalid character 'I'")}
			})

			It("returns the error", func() {
				var malformed *MalformedReplyError
				Expect(errors.As(err, &malformed)).To(BeTrue())
			})

			It("leaves the ledger untouched", func() {
				Expect(session.CurrentReceipt()).To(BeNil())
				Expect(session.Total()).To(Equal(int64(0)))
			})

			It("returns the session to idle", func() {
				Expect(session.State()).To(Equal(StateIdle))
			})
		})

		When("a previous receipt was under review", func() {
			BeforeEach(func() {
				_, firstErr := session.Process(context.Background(), "first.jpg", []byte("first"), "image/jpeg")
				Expect(firstErr).NotTo(HaveOccurred())
			})

			It("replaces it with the new capture", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(session.State()).To(Equal(StateReviewing))
			})

			It("releases the previous stored capture", func() {
				Expect(storage.files).To(HaveLen(1))
			})
		})
	})

	Describe("concurrent captures", func() {
		It("rejects a capture while one is extracting", func() {
			recognizer.started = make(chan struct{})
			recognizer.release = make(chan struct{})
			started := recognizer.started

			done := make(chan error, 1)
			go func() {
				_, err := session.Process(context.Background(), "a.jpg", []byte("a"), "image/jpeg")
				done <- err
			}()

			<-started
			_, err := session.Process(context.Background(), "b.jpg", []byte("b"), "image/jpeg")
			Expect(err).To(MatchError(ErrCaptureInProgress))

			close(recognizer.release)
			Expect(<-done).NotTo(HaveOccurred())
			Expect(session.State()).To(Equal(StateReviewing))
		})

		It("discards a completion whose session was reset underneath it", func() {
			recognizer.started = make(chan struct{})
			recognizer.release = make(chan struct{})
			started := recognizer.started

			done := make(chan error, 1)
			go func() {
				_, err := session.Process(context.Background(), "a.jpg", []byte("a"), "image/jpeg")
				done <- err
			}()

			<-started
			session.Reset()
			close(recognizer.release)

			Expect(<-done).To(MatchError(ErrCaptureSuperseded))
			Expect(session.CurrentReceipt()).To(BeNil())
			Expect(session.State()).To(Equal(StateIdle))
			Expect(storage.files).To(BeEmpty())
		})
	})

	Describe("Decline", func() {
		It("maps a denied permission", func() {
			Expect(session.Decline(true)).To(MatchError(ErrPermissionDenied))
		})

		It("maps a dismissed picker", func() {
			Expect(session.Decline(false)).To(MatchError(ErrCaptureCanceled))
		})

		It("keeps the session idle", func() {
			session.Decline(false)
			Expect(session.State()).To(Equal(StateIdle))
		})
	})

	Describe("editing", func() {
		When("a receipt is under review", func() {
			BeforeEach(func() {
				_, err := session.Process(context.Background(), "receipt.jpg", []byte("img"), "image/jpeg")
				Expect(err).NotTo(HaveOccurred())
			})

			It("applies edits to the ledger", func() {
				session.EditItem(0, "Oat Milk", "25.00")
				Expect(*session.CurrentReceipt().Items[0].Name).To(Equal("Oat Milk"))
				Expect(session.Total()).To(Equal(int64(5500)))
			})

			It("removes items from the ledger", func() {
				session.RemoveItem(0)
				Expect(session.CurrentReceipt().Items).To(HaveLen(1))
				Expect(session.Total()).To(Equal(int64(3000)))
			})

			It("hands out snapshots that do not alias the ledger", func() {
				snapshot := session.CurrentReceipt()
				session.RemoveItem(0)
				Expect(snapshot.Items).To(HaveLen(2))
			})
		})

		When("nothing is under review", func() {
			It("ignores edits", func() {
				session.EditItem(0, "Ghost", "1.00")
				Expect(session.CurrentReceipt()).To(BeNil())
			})

			It("ignores removals", func() {
				session.RemoveItem(0)
				Expect(session.State()).To(Equal(StateIdle))
			})
		})
	})

	Describe("Settle", func() {
		When("a receipt is under review", func() {
			var (
				settlement Settlement
				share      string
				err        error
			)

			BeforeEach(func() {
				_, processErr := session.Process(context.Background(), "receipt.jpg", []byte("img"), "image/jpeg")
				Expect(processErr).NotTo(HaveOccurred())
			})

			JustBeforeEach(func() {
				settlement, share, err = session.Settle()
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("captures the ledger total as decimal text", func() {
				Expect(settlement.Amount).To(Equal("50.00"))
			})

			It("derives the two-way share", func() {
				Expect(share).To(Equal("25.00"))
			})

			It("appends the settlement to the history", func() {
				Expect(session.Expenses()).To(HaveLen(1))
				Expect(session.Expenses()[0].Amount).To(Equal("50.00"))
			})

			It("clears the ledger", func() {
				Expect(session.CurrentReceipt()).To(BeNil())
				Expect(session.Total()).To(Equal(int64(0)))
			})

			It("releases the stored capture", func() {
				Expect(storage.files).To(BeEmpty())
			})

			It("returns the session to idle", func() {
				Expect(session.State()).To(Equal(StateIdle))
			})
		})

		When("nothing is under review", func() {
			It("returns ErrNothingToSettle", func() {
				_, _, err := session.Settle()
				Expect(err).To(MatchError(ErrNothingToSettle))
			})
		})
	})
})
