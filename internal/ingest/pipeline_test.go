package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockAssembler struct {
	mock.Mock
}

func (m *mockAssembler) Assemble(ctx context.Context, msg *Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func TestPipeline_DroppedMessageSkipsAssembler(t *testing.T) {
	assembler := &mockAssembler{}
	p := NewPipeline(newTestClassifier(&mockGroupNamer{}), assembler)

	in := groupMessage()
	in.IsFromMe = true

	assert.NoError(t, p.HandleMessage(context.Background(), in))
	assembler.AssertNotCalled(t, "Assemble", mock.Anything, mock.Anything)
}

func TestPipeline_ForwardsClassifiedMessage(t *testing.T) {
	groups := &mockGroupNamer{}
	groups.On("ResolveGroupName", mock.Anything, mock.Anything).Return("London Kicks", nil)
	assembler := &mockAssembler{}
	wantErr := errors.New("store unavailable")
	assembler.On("Assemble", mock.Anything, mock.MatchedBy(func(m *Message) bool {
		return m.ID == "ABC123" && m.Kind == KindTextOnly && m.GroupName == "London Kicks"
	})).Return(wantErr)

	p := NewPipeline(newTestClassifier(groups), assembler)

	err := p.HandleMessage(context.Background(), groupMessage())
	assert.ErrorIs(t, err, wantErr)
	assembler.AssertExpectations(t)
}
