package history

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/nepselabs/feed-service/internal/config"
	"github.com/nepselabs/feed-service/internal/constant"
	"github.com/nepselabs/feed-service/internal/entity"
	"github.com/nepselabs/feed-service/internal/repository"
	"github.com/nepselabs/feed-service/internal/util"
	"github.com/sirupsen/logrus"
)

const quoteStreamMaxAge = 10 * time.Minute

type quoteInserter interface {
	Create(ctx context.Context, row *entity.QuoteHistory) error
}

// QuoteHistoryService carries accepted quote updates across JetStream. The
// gateway side publishes through PublishQuote; the worker side queue
// subscribes and persists rows through the history repository.
type QuoteHistoryService struct {
	js               nats.JetStreamContext
	quoteHistoryRepo quoteInserter
	publish          func(subject string, event any) error
}

func NewQuoteHistoryService(js nats.JetStreamContext, quoteHistoryRepo *repository.QuoteHistoryRepository) *QuoteHistoryService {
	s := &QuoteHistoryService{js: js}
	if quoteHistoryRepo != nil {
		s.quoteHistoryRepo = quoteHistoryRepo
	}
	s.publish = func(subject string, event any) error {
		return util.PublishEvent(s.js, subject, event)
	}

	return s
}

func (s *QuoteHistoryService) JetstreamEventInit(ctx context.Context) error {
	streamConfig := &nats.StreamConfig{
		Name:      constant.QuoteStreamName,
		Subjects:  []string{constant.QuoteStreamSubjectAll},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    quoteStreamMaxAge,
		Replicas:  1,
	}

	stream, err := s.js.StreamInfo(constant.QuoteStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.QuoteStreamName)
		_, err = s.js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	logrus.Infof("updating stream: %s", constant.QuoteStreamName)
	_, err = s.js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	logrus.Infof("stream %s is ready", constant.QuoteStreamName)

	return nil
}

// PublishQuote mirrors one accepted quote update onto the per-symbol subject.
// Used as the feed service mirror hook on the gateway.
func (s *QuoteHistoryService) PublishQuote(q entity.Quote) error {
	row := entity.NewQuoteHistory(q)

	return s.publish(constant.GetQuoteStreamSubject(row.Symbol), entity.QuoteHistoryEvent{
		RetryCount: 0,
		Data:       row,
	})
}

func (s *QuoteHistoryService) JetstreamEventSubscribe(ctx context.Context) error {
	err := s.JetstreamEventInit(ctx)
	if err != nil {
		logrus.Error(err)
		return err
	}

	_, err = s.js.QueueSubscribe(
		constant.GetQuoteStreamSubjectAllSymbols(),
		constant.QuoteInsertQueueGroup,
		func(msg *nats.Msg) {
			err := util.ProcessWithTimeout(config.Env.NatsJetstream.TimeoutHandler["insert_quote"], msg, s.handleQuoteHistoryEvent)
			if err != nil {
				logrus.Errorf("error processing message: %v", err)
			}

			// Failed inserts travel on as requeued copies, so the delivered
			// message is always acked to stop redelivery of the same copy.
			if err := msg.Ack(); err != nil {
				logrus.Errorf("failed to acknowledge message: %v", err)
			}
		},
		nats.ManualAck(),
		nats.DeliverNew(),
	)
	if err != nil {
		return err
	}

	return nil
}

func (s *QuoteHistoryService) handleQuoteHistoryEvent(ctx context.Context, msg *nats.Msg) (err error) {
	logger := logrus.WithFields(logrus.Fields{
		"req": string(msg.Data),
	})

	var req *entity.QuoteHistoryEvent
	err = json.Unmarshal(msg.Data, &req)
	if err != nil {
		logger.Error(err)
		return err
	}

	// Requeue failed inserts with a retry budget so one bad row cannot loop
	// forever. Unparseable payloads are not worth a retry.
	defer func() {
		if err != nil && req != nil {
			req.RetryCount++
			if req.RetryCount >= config.Env.NatsJetstream.MaxRetries {
				logger.Errorf("dropping quote history event after %d attempts", req.RetryCount)
				return
			}

			publishErr := s.publish(constant.GetQuoteStreamSubject(req.Data.Symbol), req)
			if publishErr != nil {
				logger.Error(publishErr)
				return
			}
		}
	}()

	err = s.quoteHistoryRepo.Create(ctx, &req.Data)
	if err != nil {
		logger.Error(err)
		return err
	}

	return nil
}
