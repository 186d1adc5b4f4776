package tastytrade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ShreymShah/breakout-trading-bot/pkg/broker"

	"github.com/shopspring/decimal"
)

type leg struct {
	InstrumentType string `json:"instrument-type"`
	Symbol         string `json:"symbol"`
	Quantity       int    `json:"quantity"`
	Action         string `json:"action"`
}

type newOrder struct {
	TimeInForce string           `json:"time-in-force"`
	OrderType   string           `json:"order-type"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	PriceEffect string           `json:"price-effect,omitempty"`
	StopTrigger *decimal.Decimal `json:"stop-trigger,omitempty"`
	Legs        []leg            `json:"legs"`
}

type newComplexOrder struct {
	Type   string     `json:"type"`
	Orders []newOrder `json:"orders"`
}

type fill struct {
	FillPrice decimal.Decimal `json:"fill-price"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type orderStatus struct {
	ID     json.Number `json:"id"`
	Status string      `json:"status"`
	Legs   []struct {
		Fills []fill `json:"fills"`
	} `json:"legs"`
}

// PlaceBracket sends a one-lot market entry, waits for the fill and then
// attaches an OCO pair: a GTC limit at the target and a GTC stop.
func (c *Client) PlaceBracket(ctx context.Context, req broker.BracketRequest) (broker.BracketResult, error) {
	symbol, account := c.Symbol(), c.Account()
	if symbol == "" || account == "" {
		return broker.BracketResult{}, errors.New("tastytrade: not logged in")
	}
	if req.Symbol != "" {
		symbol = req.Symbol
	}

	entryAction, exitAction := "Buy to Open", "Sell to Close"
	if req.Side == broker.Sell {
		entryAction, exitAction = "Sell to Open", "Buy to Close"
	}

	entry := newOrder{
		TimeInForce: "Day",
		OrderType:   "Market",
		Legs:        []leg{{InstrumentType: "Future", Symbol: symbol, Quantity: 1, Action: entryAction}},
	}
	var placed struct {
		Data struct {
			Order orderStatus `json:"order"`
		} `json:"data"`
	}
	if err := c.post(ctx, fmt.Sprintf("/accounts/%s/orders", account), entry, &placed); err != nil {
		return broker.BracketResult{}, fmt.Errorf("place entry: %w", err)
	}
	orderID := placed.Data.Order.ID.String()

	fillPrice, err := c.waitForFill(ctx, account, orderID)
	if err != nil {
		return broker.BracketResult{EntryOrderID: orderID}, err
	}

	target, stop := broker.Exits(req.Side, fillPrice, req.Target, req.Stop)
	// Closing a long at the target is a credit, closing a short is a debit.
	effect := "Credit"
	if req.Side == broker.Sell {
		effect = "Debit"
	}
	exitLeg := []leg{{InstrumentType: "Future", Symbol: symbol, Quantity: 1, Action: exitAction}}
	oco := newComplexOrder{
		Type: "OCO",
		Orders: []newOrder{
			{TimeInForce: "GTC", OrderType: "Limit", Price: &target, PriceEffect: effect, Legs: exitLeg},
			{TimeInForce: "GTC", OrderType: "Stop", StopTrigger: &stop, Legs: exitLeg},
		},
	}
	var complexRes struct {
		Data struct {
			ComplexOrder struct {
				ID json.Number `json:"id"`
			} `json:"complex-order"`
		} `json:"data"`
	}
	res := broker.BracketResult{
		EntryOrderID: orderID,
		FillPrice:    fillPrice,
		TargetPrice:  target,
		StopPrice:    stop,
	}
	if err := c.post(ctx, fmt.Sprintf("/accounts/%s/complex-orders", account), oco, &complexRes); err != nil {
		return res, fmt.Errorf("place OCO exits: %w", err)
	}
	res.ComplexOrderID = complexRes.Data.ComplexOrder.ID.String()
	return res, nil
}

func (c *Client) waitForFill(ctx context.Context, account, orderID string) (decimal.Decimal, error) {
	path := fmt.Sprintf("/accounts/%s/orders/%s", account, orderID)
	for i := 0; i < c.cfg.PollAttempts; i++ {
		res, err := c.request(ctx).Get(path)
		if err != nil {
			if ctx.Err() != nil {
				return decimal.Zero, ctx.Err()
			}
			return decimal.Zero, fmt.Errorf("get order %s: %w", orderID, err)
		}
		if res.StatusCode() != http.StatusOK {
			return decimal.Zero, statusError("get order", res)
		}
		var body struct {
			Data orderStatus `json:"data"`
		}
		if err := json.Unmarshal(res.Body(), &body); err != nil {
			return decimal.Zero, fmt.Errorf("decode order: %w", err)
		}

		switch body.Data.Status {
		case "Filled":
			if len(body.Data.Legs) == 0 {
				return decimal.Zero, fmt.Errorf("order %s filled without legs", orderID)
			}
			return averageFill(body.Data.Legs[0].Fills)
		case "Cancelled", "Rejected":
			return decimal.Zero, fmt.Errorf("%w: entry %s", broker.ErrOrderRejected, body.Data.Status)
		}

		select {
		case <-time.After(c.cfg.PollInterval):
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		}
	}
	return decimal.Zero, broker.ErrFillTimeout
}

// averageFill is the quantity-weighted fill price.
func averageFill(fills []fill) (decimal.Decimal, error) {
	notional, qty := decimal.Zero, decimal.Zero
	for _, f := range fills {
		notional = notional.Add(f.FillPrice.Mul(f.Quantity))
		qty = qty.Add(f.Quantity)
	}
	if qty.IsZero() {
		return decimal.Zero, errors.New("filled order reports no fills")
	}
	return notional.Div(qty), nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	res, err := c.request(ctx).SetBody(body).Post(path)
	if err != nil {
		return err
	}
	if res.StatusCode() != http.StatusOK && res.StatusCode() != http.StatusCreated {
		return statusError("POST "+path, res)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
