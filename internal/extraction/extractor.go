package extraction

import (
	"context"
	"errors"

	"kvittering/internal/receipt"
)

// Completer is the remote text-completion collaborator: one prompt in,
// the first choice's message content out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	// Close releases the underlying client
	Close() error
}

// Extractor converts raw OCR text into a canonical receipt via the
// completion collaborator.
type Extractor struct {
	completer Completer
}

// NewExtractor creates an Extractor on top of a completion provider.
func NewExtractor(completer Completer) *Extractor {
	return &Extractor{completer: completer}
}

// Extract prompts the completion service with the raw text and parses its
// reply into a fresh Receipt. It mutates no shared state; on any failure
// the caller's ledger is untouched.
func (e *Extractor) Extract(ctx context.Context, rawText string) (*receipt.Receipt, error) {
	reply, err := e.completer.Complete(ctx, BuildPrompt(rawText))
	if err != nil {
		if errors.Is(err, receipt.ErrEmptyReply) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &receipt.NetworkError{Stage: "completion", Err: err}
	}
	return parseReply(reply)
}

// Close closes the underlying completion provider.
func (e *Extractor) Close() error {
	return e.completer.Close()
}
