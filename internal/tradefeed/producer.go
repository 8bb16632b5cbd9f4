package tradefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"altcoin/internal/metrics"
	"altcoin/internal/models"
	"altcoin/internal/money"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	publishTimeout = 2 * time.Second
	tradeIDHeader  = "trade_id"
)

// TradeEvent is the message published for every executed match.
type TradeEvent struct {
	ID             string    `json:"id"`
	Pair           string    `json:"pair"`
	Currency       string    `json:"currency"`
	PriceCurrency  string    `json:"price_currency"`
	Value          string    `json:"value"`
	Price          string    `json:"price"`
	TradeValue     string    `json:"trade_value"`
	BuyCommission  string    `json:"buy_commission"`
	SellCommission string    `json:"sell_commission"`
	BuyerID        string    `json:"buyer_id"`
	SellerID       string    `json:"seller_id"`
	BuyOrderID     string    `json:"buy_order_id"`
	SellOrderID    string    `json:"sell_order_id"`
	ExecutedAt     time.Time `json:"executed_at"`
}

func NewTradeEvent(h models.TradeHistory) TradeEvent {
	return TradeEvent{
		ID:             h.ID,
		Pair:           h.Pair().String(),
		Currency:       h.Currency,
		PriceCurrency:  h.PriceCurrency,
		Value:          money.Format(h.Value),
		Price:          money.Format(h.Price),
		TradeValue:     money.Format(h.TradeValue),
		BuyCommission:  money.Format(h.BuyCommission),
		SellCommission: money.Format(h.SellCommission),
		BuyerID:        h.BuyerID,
		SellerID:       h.SellerID,
		BuyOrderID:     h.BuyOrderID,
		SellOrderID:    h.SellOrderID,
		ExecutedAt:     h.CreatedAt,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes executed trades keyed by pair, so consumers see the
// trades of one pair in execution order. Writes are asynchronous: a slow or
// unreachable broker never holds up the matching loop, and failed deliveries
// are reported through the completion callback.
type Producer struct {
	writer messageWriter
}

func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
			Completion:   reportFailures(logger),
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func reportFailures(logger *zap.Logger) func([]kafka.Message, error) {
	return func(messages []kafka.Message, err error) {
		if err == nil {
			return
		}
		metrics.TradeFeedFailures.Add(float64(len(messages)))
		for _, msg := range messages {
			logger.Warn("trade feed delivery failed",
				zap.String("trade_history_id", headerValue(msg, tradeIDHeader)),
				zap.ByteString("pair", msg.Key),
				zap.Error(err),
			)
		}
	}
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (p *Producer) PublishTrade(ctx context.Context, h models.TradeHistory) error {
	payload, err := json.Marshal(NewTradeEvent(h))
	if err != nil {
		return fmt.Errorf("encode trade %s: %w", h.ID, err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(h.Pair().String()),
		Value:   payload,
		Headers: []kafka.Header{{Key: tradeIDHeader, Value: []byte(h.ID)}},
		Time:    h.CreatedAt,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
