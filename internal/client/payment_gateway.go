package client

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StubGateway issues payment intent references locally. It stands in for a
// real provider adapter; the settlement webhook path is identical either way.
type StubGateway struct {
	logger *zap.Logger
}

func NewStubGateway(logger *zap.Logger) *StubGateway {
	return &StubGateway{logger: logger}
}

func (g *StubGateway) CreateIntent(ctx context.Context, amount float64, currency, method string) (string, error) {
	intentID := "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]

	g.logger.Info("payment intent issued",
		zap.String("intent_id", intentID),
		zap.Float64("amount", amount),
		zap.String("currency", currency),
		zap.String("method", method),
	)

	return intentID, nil
}
