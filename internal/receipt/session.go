package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// State names the position of the session in the capture pipeline.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateExtracting
	StateReviewing
	StateSettled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateExtracting:
		return "extracting"
	case StateReviewing:
		return "reviewing"
	case StateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Recognizer turns a captured image into raw text.
type Recognizer interface {
	Recognize(ctx context.Context, imageData []byte, contentType string) (string, error)
}

// Extractor turns raw OCR text into a structured receipt.
type Extractor interface {
	Extract(ctx context.Context, rawText string) (*Receipt, error)
}

// IDGenerator generates unique IDs for stored captures
type IDGenerator interface {
	Generate() string
}

// defaultIDGenerator generates IDs using UnixNano timestamp
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// Session is the single active capture pipeline:
//
//	idle → capturing → extracting → reviewing → (settled → idle)
//
// One capture runs at a time; its stages never overlap. Each capture gets
// a monotonically increasing token, and a completion carrying a stale
// token (the session was reset underneath it) is discarded instead of
// overwriting the ledger.
type Session struct {
	mu     sync.Mutex
	state  State
	token  uint64
	ledger *Ledger

	recognizer Recognizer
	extractor  Extractor
	storage    Storage
	settler    *Settler
	history    *History

	idGenerator  IDGenerator
	stageTimeout time.Duration

	imagePath string // stored capture backing the current review
}

// NewSession creates a Session with default dependencies.
func NewSession(recognizer Recognizer, extractor Extractor, storage Storage, participants int, stageTimeout time.Duration) *Session {
	if stageTimeout <= 0 {
		stageTimeout = 30 * time.Second
	}
	history := NewHistory()
	return NewSessionWithDeps(
		recognizer, extractor, storage,
		NewSettler(participants, history), history,
		&defaultIDGenerator{}, stageTimeout,
	)
}

// NewSessionWithDeps creates a Session with custom dependencies for testing.
func NewSessionWithDeps(
	recognizer Recognizer,
	extractor Extractor,
	storage Storage,
	settler *Settler,
	history *History,
	idGen IDGenerator,
	stageTimeout time.Duration,
) *Session {
	return &Session{
		state:        StateIdle,
		ledger:       NewLedger(),
		recognizer:   recognizer,
		extractor:    extractor,
		storage:      storage,
		settler:      settler,
		history:      history,
		idGenerator:  idGen,
		stageTimeout: stageTimeout,
	}
}

// sanitizeFilename cleans up a capture filename before storing it; phone
// cameras produce long names full of special characters.
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`).ReplaceAllString(base, "")
	base = regexp.MustCompile(`\s+`).ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "capture"
	}
	return base + ext
}

// Process runs one capture through OCR and extraction and, on success,
// loads the result into the ledger and moves the session to reviewing.
// It is rejected while an earlier capture is still in flight. Every
// failure returns the session to idle and returns a typed error.
func (s *Session) Process(ctx context.Context, filename string, imageData []byte, contentType string) (*Receipt, error) {
	s.mu.Lock()
	if s.state == StateCapturing || s.state == StateExtracting {
		s.mu.Unlock()
		return nil, ErrCaptureInProgress
	}
	s.token++
	token := s.token
	// A new capture replaces whatever was under review
	s.ledger.Clear()
	s.releaseImageLocked()
	s.state = StateCapturing
	s.mu.Unlock()

	if len(imageData) == 0 {
		return nil, s.fail(token, ErrCaptureCanceled)
	}

	savedPath, err := s.storage.Save(
		fmt.Sprintf("%s_%s", s.idGenerator.Generate(), sanitizeFilename(filename)),
		imageData,
	)
	if err != nil {
		return nil, s.fail(token, fmt.Errorf("saving capture: %w", err))
	}

	s.setState(token, StateExtracting)

	text, err := s.recognize(ctx, imageData, contentType)
	if err != nil {
		s.storage.Delete(savedPath)
		return nil, s.fail(token, err)
	}

	rec, err := s.extract(ctx, text)
	if err != nil {
		s.storage.Delete(savedPath)
		return nil, s.fail(token, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.token {
		// The session was reset while this capture was in flight;
		// its result must not overwrite the active ledger.
		s.storage.Delete(savedPath)
		return nil, ErrCaptureSuperseded
	}
	s.ledger.Load(rec)
	s.imagePath = savedPath
	s.state = StateReviewing
	slog.Info("Receipt loaded for review", "items", len(rec.Items))
	return rec, nil
}

func (s *Session) recognize(ctx context.Context, imageData []byte, contentType string) (string, error) {
	stageCtx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	defer cancel()
	text, err := s.recognizer.Recognize(stageCtx, imageData, contentType)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &TimeoutError{Stage: "ocr"}
		}
		return "", err
	}
	return text, nil
}

func (s *Session) extract(ctx context.Context, text string) (*Receipt, error) {
	stageCtx, cancel := context.WithTimeout(ctx, s.stageTimeout)
	defer cancel()
	rec, err := s.extractor.Extract(stageCtx, text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Stage: "completion"}
		}
		return nil, err
	}
	return rec, nil
}

// fail returns the session to idle (unless a newer capture owns it) and
// passes the error through to the caller.
func (s *Session) fail(token uint64, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == s.token {
		s.state = StateIdle
	}
	return err
}

func (s *Session) setState(token uint64, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == s.token {
		s.state = state
	}
}

// Decline records that the capture collaborator produced no image. A
// denied camera permission and a dismissed picker both land here; the
// session stays idle either way.
func (s *Session) Decline(permissionDenied bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCapturing || s.state == StateExtracting {
		return ErrCaptureInProgress
	}
	if permissionDenied {
		return ErrPermissionDenied
	}
	return ErrCaptureCanceled
}

// Reset abandons the current review or any in-flight capture: the token
// is bumped so a late completion is discarded, the ledger is cleared and
// the stored capture released.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token++
	s.ledger.Clear()
	s.releaseImageLocked()
	s.state = StateIdle
}

// BeginEdit points the edit cursor at an item. Ignored outside review.
func (s *Session) BeginEdit(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReviewing {
		return
	}
	s.ledger.BeginEdit(index)
}

// CommitEdit applies a pending edit. Ignored outside review.
func (s *Session) CommitEdit(name, totalPrice string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReviewing {
		return
	}
	s.ledger.CommitEdit(name, totalPrice)
}

// EditItem is BeginEdit followed by CommitEdit under one critical section.
func (s *Session) EditItem(index int, name, totalPrice string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReviewing {
		return
	}
	s.ledger.BeginEdit(index)
	s.ledger.CommitEdit(name, totalPrice)
}

// RemoveItem deletes an item from the review. Ignored outside review.
func (s *Session) RemoveItem(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReviewing {
		return
	}
	s.ledger.Remove(index)
}

// Total returns the running ledger total in øre.
func (s *Session) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Total()
}

// CurrentReceipt returns a snapshot of the receipt under review, or nil.
// The items slice is copied so callers can encode it without holding the
// session lock.
func (s *Session) CurrentReceipt() *Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.ledger.Receipt()
	if rec == nil {
		return nil
	}
	snapshot := *rec
	snapshot.Items = make([]ReceiptItem, len(rec.Items))
	copy(snapshot.Items, rec.Items)
	return &snapshot
}

// State returns the current pipeline state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Settle finalizes the ledger total into the expense history, clears the
// ledger, releases the stored capture and returns the session to idle.
// The returned share is the derived per-participant part of the amount.
func (s *Session) Settle() (Settlement, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReviewing || s.ledger.Receipt() == nil {
		return Settlement{}, "", ErrNothingToSettle
	}
	s.state = StateSettled

	amount := FormatAmount(s.ledger.Total())
	settlement := s.settler.Settle(amount)
	share := s.settler.Share(amount)

	s.ledger.Clear()
	s.releaseImageLocked()
	s.state = StateIdle
	slog.Info("Settlement recorded", "amount", amount, "share", share)
	return settlement, share, nil
}

// Expenses returns the settlement history in append order.
func (s *Session) Expenses() []Settlement {
	return s.history.List()
}

// Participants returns the configured split size.
func (s *Session) Participants() int {
	return s.settler.Participants()
}

// releaseImageLocked deletes the stored capture, if any. Callers hold mu.
func (s *Session) releaseImageLocked() {
	if s.imagePath == "" {
		return
	}
	if err := s.storage.Delete(s.imagePath); err != nil {
		slog.Warn("Failed to delete stored capture", "path", s.imagePath, "error", err)
	}
	s.imagePath = ""
}
