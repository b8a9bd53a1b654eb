package whiteboard

import (
	"fmt"

	"github.com/rs/zerolog"

	"metaverse/internal/app/protocol"
	"metaverse/internal/pkg/logx"
)

// Sender is the outbound half of the transport.
type Sender interface {
	Send(msg protocol.ClientEvent) error
}

// SyncOptions tunes a Syncer.
type SyncOptions struct {
	// Key matches objects between documents. Defaults to StructuralKey.
	Key KeyFunc

	// PollEvery checks the document every N calls to Poll. Defaults to 1.
	PollEvery int

	Logger *zerolog.Logger
}

// Syncer sends local whiteboard changes and reconciles remote snapshots.
type Syncer struct {
	sender    Sender
	key       KeyFunc
	pollEvery int
	calls     int
	lastSent  string
	logger    zerolog.Logger
}

// NewSyncer creates a syncer for doc. The current content of doc counts as
// already sent, so joining a room never broadcasts an empty board.
func NewSyncer(sender Sender, doc *Document, opts SyncOptions) (*Syncer, error) {
	s := &Syncer{
		sender:    sender,
		key:       opts.Key,
		pollEvery: opts.PollEvery,
	}
	if s.key == nil {
		s.key = StructuralKey
	}
	if s.pollEvery <= 0 {
		s.pollEvery = 1
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With().Str("component", "whiteboard").Logger()
	} else {
		s.logger = logx.Component("whiteboard")
	}

	initial, err := doc.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serialize initial document: %w", err)
	}
	s.lastSent = initial

	return s, nil
}

// Poll is called from the frame callback. Every PollEvery calls it serializes
// the whole document and, if the text differs from the last sent version,
// compresses the object list and emits an edit. It reports whether an edit was
// sent.
func (s *Syncer) Poll(doc *Document) (bool, error) {
	s.calls++
	if s.calls < s.pollEvery {
		return false, nil
	}
	s.calls = 0

	current, err := doc.Serialize()
	if err != nil {
		return false, fmt.Errorf("serialize document: %w", err)
	}
	if current == s.lastSent {
		return false, nil
	}

	content, err := Compress(doc.Objects())
	if err != nil {
		return false, err
	}

	if err := s.sender.Send(protocol.Edit{Content: content}); err != nil {
		// Keep lastSent so the change is retried on the next poll.
		return false, fmt.Errorf("send edit: %w", err)
	}

	s.lastSent = current
	s.logger.Debug().
		Int("objects", doc.Len()).
		Int("bytes", len(content)).
		Msg("Whiteboard edit sent")

	return true, nil
}

// Apply decompresses an inbound snapshot and reconciles doc against it. The
// reconciled document becomes the last sent state so it is not echoed back.
func (s *Syncer) Apply(doc *Document, content []byte) (Diff, error) {
	incoming, err := Decompress(content)
	if err != nil {
		return Diff{}, err
	}

	diff := Compute(doc.Objects(), incoming, s.key)
	doc.apply(diff, s.key)

	if serialized, err := doc.Serialize(); err == nil {
		s.lastSent = serialized
	}

	s.logger.Debug().
		Int("deleted", len(diff.ToDelete)).
		Int("added", len(diff.ToAdd)).
		Int("objects", doc.Len()).
		Msg("Whiteboard snapshot applied")

	return diff, nil
}
