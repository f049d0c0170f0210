// Package position holds the money-side state of a simulation: the single
// open position, the closed-position history entries, and the account they
// settle against. All amounts are decimal.
package position

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Position is opened by a buy trigger and mutated exactly once, on close.
// Lifetime profit/loss queries fail while the position is still open.
type Position struct {
	buyPrice  decimal.Decimal
	shares    decimal.Decimal
	buyDay    int
	sellPrice decimal.Decimal
	sellDay   int
	closed    bool
}

// Open creates a position bought at price on the given day index.
func Open(buyPrice, shares decimal.Decimal, buyDay int) *Position {
	return &Position{buyPrice: buyPrice, shares: shares, buyDay: buyDay}
}

// Close records the sell fill. A position closes at most once.
func (p *Position) Close(sellPrice decimal.Decimal, sellDay int) error {
	if p.closed {
		return fmt.Errorf("position already closed on day %d", p.sellDay)
	}
	p.sellPrice = sellPrice
	p.sellDay = sellDay
	p.closed = true
	return nil
}

func (p *Position) Closed() bool               { return p.closed }
func (p *Position) BuyPrice() decimal.Decimal  { return p.buyPrice }
func (p *Position) Shares() decimal.Decimal    { return p.shares }
func (p *Position) BuyDay() int                { return p.buyDay }
func (p *Position) SellPrice() decimal.Decimal { return p.sellPrice }
func (p *Position) SellDay() int               { return p.sellDay }

// Proceeds is the cash credited back on close: shares at the sell price.
func (p *Position) Proceeds() (decimal.Decimal, error) {
	if !p.closed {
		return decimal.Zero, fmt.Errorf("position still open")
	}
	return p.shares.Mul(p.sellPrice), nil
}

// LifetimeProfitLoss is (sell − buy) × shares; it requires a closed position.
func (p *Position) LifetimeProfitLoss() (decimal.Decimal, error) {
	if !p.closed {
		return decimal.Zero, fmt.Errorf("position still open")
	}
	return p.sellPrice.Sub(p.buyPrice).Mul(p.shares), nil
}

// LifetimeProfitLossPercent is (sell − buy) / buy × 100 for a closed position.
func (p *Position) LifetimeProfitLossPercent() (decimal.Decimal, error) {
	if !p.closed {
		return decimal.Zero, fmt.Errorf("position still open")
	}
	return p.sellPrice.Sub(p.buyPrice).Div(p.buyPrice).Mul(hundred), nil
}

// Duration is the number of days between open and close.
func (p *Position) Duration() (int, error) {
	if !p.closed {
		return 0, fmt.Errorf("position still open")
	}
	return p.sellDay - p.buyDay, nil
}

// ProfitLossBetween values the position's share count over an arbitrary price
// move. Stop rules use it with buy-price→close (lifetime) or open→close
// (intraday) operands.
func (p *Position) ProfitLossBetween(from, to decimal.Decimal) decimal.Decimal {
	return to.Sub(from).Mul(p.shares)
}

// ProfitLossPercentBetween is the percent move from one price to another.
func (p *Position) ProfitLossPercentBetween(from, to decimal.Decimal) decimal.Decimal {
	if from.IsZero() {
		return decimal.Zero
	}
	return to.Sub(from).Div(from).Mul(hundred)
}

// Account tracks the cash balance a simulation trades out of. The initial
// balance is set once at construction.
type Account struct {
	initial decimal.Decimal
	balance decimal.Decimal
}

func NewAccount(initial decimal.Decimal) *Account {
	return &Account{initial: initial, balance: initial}
}

func (a *Account) Initial() decimal.Decimal { return a.initial }
func (a *Account) Balance() decimal.Decimal { return a.balance }

// Debit removes cash on a position open.
func (a *Account) Debit(amount decimal.Decimal) error {
	if amount.GreaterThan(a.balance) {
		return fmt.Errorf("account: debit %s exceeds balance %s", amount, a.balance)
	}
	a.balance = a.balance.Sub(amount)
	return nil
}

// Credit returns cash on a position close.
func (a *Account) Credit(amount decimal.Decimal) {
	a.balance = a.balance.Add(amount)
}

// ProfitLoss is current balance minus initial balance.
func (a *Account) ProfitLoss() decimal.Decimal {
	return a.balance.Sub(a.initial)
}
