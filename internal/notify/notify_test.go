package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/matchforge/configurator/pkg/errors"
	"github.com/matchforge/configurator/pkg/json"
)

func TestNopDiscardsEvents(t *testing.T) {
	n := Nop{}
	assert.NoError(t, n.ConfigActivated(context.Background(), Event{ConfigID: 1}))
	assert.NoError(t, n.Close())
}

func TestKafkaPublishesEvent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var decoded struct {
			ConfigID    int64    `json:"configID"`
			Comment     string   `json:"comment"`
			DataSources []string `json:"datasources"`
		}
		if err := json.Unmarshal(val, &decoded); err != nil {
			return err
		}
		if decoded.ConfigID != 7 {
			return fmt.Errorf("unexpected config id %d", decoded.ConfigID)
		}
		if decoded.Comment != "CONFIG_DATA_ID: 6 plus datasources: [CUSTOMER]" {
			return fmt.Errorf("unexpected comment %q", decoded.Comment)
		}
		if len(decoded.DataSources) != 1 || decoded.DataSources[0] != "CUSTOMER" {
			return fmt.Errorf("unexpected datasources %v", decoded.DataSources)
		}
		return nil
	})

	n := &Kafka{producer: producer, topic: "matchforge-config-events", logger: zap.NewNop()}
	err := n.ConfigActivated(context.Background(), Event{
		ConfigID:    7,
		Comment:     "CONFIG_DATA_ID: 6 plus datasources: [CUSTOMER]",
		DataSources: []string{"CUSTOMER"},
		ActivatedAt: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, n.Close())
}

func TestKafkaPublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	n := &Kafka{producer: producer, topic: "matchforge-config-events", logger: zap.NewNop()}
	err := n.ConfigActivated(context.Background(), Event{ConfigID: 9})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.True(t, errors.IsRetryable(err))
	require.NoError(t, n.Close())
}

func TestEventJSONShape(t *testing.T) {
	raw, err := json.Marshal(Event{
		ConfigID:    3,
		Comment:     "Initial configuration.",
		DataSources: []string{"CUSTOMER", "WATCHLIST"},
		ActivatedAt: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"configID": 3,
		"comment": "Initial configuration.",
		"datasources": ["CUSTOMER", "WATCHLIST"],
		"activatedAt": "2026-08-25T12:00:00Z"
	}`, string(raw))
}

func TestSplitBrokers(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"kafka-1:9092", []string{"kafka-1:9092"}},
		{"kafka-1:9092,kafka-2:9092", []string{"kafka-1:9092", "kafka-2:9092"}},
		{" kafka-1:9092 , kafka-2:9092 ,", []string{"kafka-1:9092", "kafka-2:9092"}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, splitBrokers(tc.in), "input %q", tc.in)
	}
}
