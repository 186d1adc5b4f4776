package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaperConfig tunes the simulated fills.
type PaperConfig struct {
	SlippageBps  float64 // basis points of adverse slippage applied on fills
	LatencyMinMs int
	LatencyMaxMs int
}

// PaperBroker fills every entry at the reference price plus random adverse
// slippage. It never talks to an exchange.
type PaperBroker struct {
	cfg PaperConfig

	mu     sync.Mutex
	rng    *rand.Rand
	orders []PaperOrder
}

// PaperOrder is a simulated bracket kept for inspection.
type PaperOrder struct {
	Request  BracketRequest
	Result   BracketResult
	FilledAt time.Time
}

func NewPaperBroker(cfg PaperConfig) *PaperBroker {
	if cfg.LatencyMaxMs > 0 && cfg.LatencyMinMs > cfg.LatencyMaxMs {
		cfg.LatencyMinMs, cfg.LatencyMaxMs = cfg.LatencyMaxMs, cfg.LatencyMinMs
	}
	return &PaperBroker{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *PaperBroker) Login(ctx context.Context) error {
	logger.Info("DRY-RUN: paper broker ready")
	return nil
}

func (p *PaperBroker) Revalidate(ctx context.Context) bool { return true }

func (p *PaperBroker) PlaceBracket(ctx context.Context, req BracketRequest) (BracketResult, error) {
	if req.ReferencePrice.Sign() <= 0 {
		return BracketResult{}, fmt.Errorf("%w: paper fill needs a reference price", ErrOrderRejected)
	}
	if req.Side != Buy && req.Side != Sell {
		return BracketResult{}, fmt.Errorf("%w: unknown side %q", ErrOrderRejected, req.Side)
	}

	if delay := p.latency(); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return BracketResult{}, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fill := req.ReferencePrice
	if frac := p.cfg.SlippageBps / 10000.0; frac > 0 {
		noise := decimal.NewFromFloat(p.rng.Float64() * frac).Round(8)
		if req.Side == Buy {
			fill = fill.Mul(decimal.NewFromInt(1).Add(noise))
		} else {
			fill = fill.Mul(decimal.NewFromInt(1).Sub(noise))
		}
		fill = fill.Round(4)
	}
	tp, sl := Exits(req.Side, fill, req.Target, req.Stop)
	res := BracketResult{
		EntryOrderID:   uuid.NewString(),
		ComplexOrderID: uuid.NewString(),
		FillPrice:      fill,
		TargetPrice:    tp,
		StopPrice:      sl,
	}
	p.orders = append(p.orders, PaperOrder{Request: req, Result: res, FilledAt: time.Now()})
	logger.Infof("DRY-RUN bracket %s %s fill=%s tp=%s sl=%s", req.Side, req.Symbol, fill, tp, sl)
	return res, nil
}

// Orders returns a copy of the simulated brackets.
func (p *PaperBroker) Orders() []PaperOrder {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PaperOrder, len(p.orders))
	copy(out, p.orders)
	return out
}

func (p *PaperBroker) latency() time.Duration {
	minMs, maxMs := p.cfg.LatencyMinMs, p.cfg.LatencyMaxMs
	if maxMs <= 0 {
		return 0
	}
	if minMs < 0 {
		minMs = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ms := minMs
	if span := maxMs - minMs; span > 0 {
		ms += p.rng.Intn(span + 1)
	}
	return time.Duration(ms) * time.Millisecond
}
