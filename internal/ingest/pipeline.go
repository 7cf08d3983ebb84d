package ingest

import (
	"context"

	"github.com/raine/tradefeed/internal/transport"
	"github.com/rs/zerolog/log"
)

// Assembler turns a classified message into buffer or listing changes.
type Assembler interface {
	Assemble(ctx context.Context, msg *Message) error
}

// Pipeline is the queue handler: classify, then assemble.
type Pipeline struct {
	classifier *Classifier
	assembler  Assembler
}

// NewPipeline creates a Pipeline.
func NewPipeline(classifier *Classifier, assembler Assembler) *Pipeline {
	return &Pipeline{classifier: classifier, assembler: assembler}
}

// HandleMessage implements Handler.
func (p *Pipeline) HandleMessage(ctx context.Context, in *transport.InboundMessage) error {
	msg, reason := p.classifier.Classify(ctx, in)
	if msg == nil {
		log.Debug().
			Str("messageId", in.ID).
			Str("chatId", in.ChatID).
			Str("reason", string(reason)).
			Msg("message dropped")
		return nil
	}

	log.Debug().
		Str("messageId", msg.ID).
		Str("groupId", msg.GroupID).
		Str("kind", msg.Kind.String()).
		Msg("message classified")

	return p.assembler.Assemble(ctx, msg)
}
