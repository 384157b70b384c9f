package eventlog

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vallemarketing/valle360-teste-sub009/internal/metrics"
	"github.com/vallemarketing/valle360-teste-sub009/internal/models"
	"github.com/vallemarketing/valle360-teste-sub009/internal/search"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Append(ctx context.Context, e *models.EventLog) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) IndexEvent(ctx context.Context, doc search.EventDocument) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func TestAppendWritesRowAndIndexes(t *testing.T) {
	store := new(MockStore)
	indexer := new(MockIndexer)
	l := New(store, indexer, metrics.NewMetrics())

	var saved *models.EventLog
	store.On("Append", mock.Anything, mock.AnythingOfType("*models.EventLog")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*models.EventLog) }).
		Return(nil)
	indexer.On("IndexEvent", mock.Anything, mock.AnythingOfType("search.EventDocument")).Return(nil)

	err := l.Append(context.Background(), Entry{
		EventType:     "workflow_transition.completed",
		EntityType:    "workflow_transition",
		EntityID:      "t-1",
		ActorID:       "3c9b2f4e-1a2b-4c3d-8e9f-0a1b2c3d4e5f",
		CorrelationID: "not-a-uuid",
		Payload:       map[string]interface{}{"prev_status": "pending", "next_status": "completed"},
	})
	require.NoError(t, err)

	require.NotNil(t, saved)
	assert.Equal(t, StatusProcessed, saved.Status)
	require.NotNil(t, saved.ActorID)
	assert.Nil(t, saved.CorrelationID, "non-uuid correlation ids stay out of the column")

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(saved.Payload, &payload))
	assert.Equal(t, "completed", payload["next_status"])

	store.AssertExpectations(t)
	indexer.AssertExpectations(t)
}

func TestAppendIgnoresIndexFailure(t *testing.T) {
	store := new(MockStore)
	indexer := new(MockIndexer)
	l := New(store, indexer, nil)

	store.On("Append", mock.Anything, mock.Anything).Return(nil)
	indexer.On("IndexEvent", mock.Anything, mock.Anything).Return(errors.New("es down"))

	assert.NoError(t, l.Append(context.Background(), Entry{EventType: "x", EntityType: "y", EntityID: "z"}))
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	store := new(MockStore)
	m := metrics.NewMetrics()
	l := New(store, nil, m)

	store.On("Append", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	assert.NotPanics(t, func() {
		l.Record(context.Background(), Entry{EventType: "x", EntityType: "y", EntityID: "z"})
	})
	assert.Equal(t, int64(1), m.Counter(metrics.EventLogFailures))
}

func TestParseUUID(t *testing.T) {
	assert.Nil(t, ParseUUID(""))
	assert.Nil(t, ParseUUID("abc"))
	require.NotNil(t, ParseUUID("3c9b2f4e-1a2b-4c3d-8e9f-0a1b2c3d4e5f"))
}
