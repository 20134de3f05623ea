package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dclass/domain/events"
	pkgerrors "dclass/pkg/errors"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*eventbridge.PutEventsOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func savedEvents(n int) []events.DomainEvent {
	out := make([]events.DomainEvent, n)
	for i := range out {
		out[i] = events.NewDiagramSaved(fmt.Sprintf("d%d", i), 2, 1, i+1)
	}
	return out
}

func TestPublishBatch_ChunksOfTen(t *testing.T) {
	// Arrange
	ctx := context.Background()
	client := new(mockClient)
	client.On("PutEvents", ctx, mock.MatchedBy(func(in *eventbridge.PutEventsInput) bool {
		return len(in.Entries) == 10
	})).Return(&eventbridge.PutEventsOutput{}, nil).Twice()
	client.On("PutEvents", ctx, mock.MatchedBy(func(in *eventbridge.PutEventsInput) bool {
		return len(in.Entries) == 3
	})).Return(&eventbridge.PutEventsOutput{}, nil).Once()

	pub := NewPublisher(client, "dclass-bus", events.SourceCollab, nil)

	// Act
	err := pub.PublishBatch(ctx, savedEvents(23))

	// Assert
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestPublish_EntryShape(t *testing.T) {
	ctx := context.Background()
	client := new(mockClient)
	var captured *eventbridge.PutEventsInput
	client.On("PutEvents", ctx, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*eventbridge.PutEventsInput) }).
		Return(&eventbridge.PutEventsOutput{}, nil)

	pub := NewPublisher(client, "dclass-bus", "", nil)
	require.NoError(t, pub.Publish(ctx, events.NewDiagramDeleted("42", 3)))

	require.Len(t, captured.Entries, 1)
	entry := captured.Entries[0]
	assert.Equal(t, "dclass-bus", aws.ToString(entry.EventBusName))
	assert.Equal(t, events.SourceAPI, aws.ToString(entry.Source))
	assert.Equal(t, events.TypeDiagramDeleted, aws.ToString(entry.DetailType))
	assert.Equal(t, []string{"dclass:diagram/42"}, entry.Resources)

	var detail map[string]any
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail))
	assert.NotEmpty(t, detail)
}

func TestPublish_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("api error", func(t *testing.T) {
		client := new(mockClient)
		client.On("PutEvents", ctx, mock.Anything).Return(nil, errors.New("throttled"))
		err := NewPublisher(client, "bus", "", nil).Publish(ctx, events.NewDiagramDeleted("1", 1))
		assert.True(t, pkgerrors.IsRemote(err))
	})

	t.Run("failed entries", func(t *testing.T) {
		client := new(mockClient)
		client.On("PutEvents", ctx, mock.Anything).Return(&eventbridge.PutEventsOutput{
			FailedEntryCount: 1,
			Entries:          []types.PutEventsResultEntry{{ErrorCode: aws.String("InternalFailure")}},
		}, nil)
		err := NewPublisher(client, "bus", "", nil).Publish(ctx, events.NewDiagramDeleted("1", 1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 events failed")
	})
}

func TestLoggingPublisher(t *testing.T) {
	pub := NewLoggingPublisher(nil)
	assert.NoError(t, pub.PublishBatch(context.Background(), savedEvents(3)))
}
