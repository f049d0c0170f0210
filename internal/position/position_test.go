package position

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	return decimal.RequireFromString(s)
}

func TestPositionLifecycle(t *testing.T) {
	p := Open(dec(t, "100"), dec(t, "10"), 2)

	if p.Closed() {
		t.Fatal("new position must be open")
	}
	if _, err := p.LifetimeProfitLoss(); err == nil {
		t.Fatal("lifetime P/L on an open position must fail")
	}
	if _, err := p.Proceeds(); err == nil {
		t.Fatal("proceeds on an open position must fail")
	}

	if err := p.Close(dec(t, "120"), 7); err != nil {
		t.Fatal(err)
	}
	if err := p.Close(dec(t, "130"), 8); err == nil {
		t.Fatal("second close must fail")
	}

	pl, err := p.LifetimeProfitLoss()
	if err != nil {
		t.Fatal(err)
	}
	if !pl.Equal(dec(t, "200")) {
		t.Fatalf("P/L = %s, want 200", pl)
	}
	pct, err := p.LifetimeProfitLossPercent()
	if err != nil {
		t.Fatal(err)
	}
	if !pct.Equal(dec(t, "20")) {
		t.Fatalf("P/L%% = %s, want 20", pct)
	}
	proceeds, err := p.Proceeds()
	if err != nil {
		t.Fatal(err)
	}
	if !proceeds.Equal(dec(t, "1200")) {
		t.Fatalf("proceeds = %s, want 1200", proceeds)
	}
	days, err := p.Duration()
	if err != nil {
		t.Fatal(err)
	}
	if days != 5 {
		t.Fatalf("duration = %d, want 5", days)
	}
}

func TestProfitLossBetween(t *testing.T) {
	p := Open(dec(t, "100"), dec(t, "10"), 0)
	if got := p.ProfitLossBetween(dec(t, "100"), dec(t, "94")); !got.Equal(dec(t, "-60")) {
		t.Fatalf("P/L between = %s, want -60", got)
	}
	if got := p.ProfitLossPercentBetween(dec(t, "100"), dec(t, "94")); !got.Equal(dec(t, "-6")) {
		t.Fatalf("P/L%% between = %s, want -6", got)
	}
	if got := p.ProfitLossPercentBetween(decimal.Zero, dec(t, "94")); !got.IsZero() {
		t.Fatalf("P/L%% from zero = %s, want 0", got)
	}
}

func TestAccount(t *testing.T) {
	a := NewAccount(dec(t, "10000"))
	if err := a.Debit(dec(t, "10001")); err == nil {
		t.Fatal("overdraw must fail")
	}
	if err := a.Debit(dec(t, "10000")); err != nil {
		t.Fatal(err)
	}
	if !a.Balance().IsZero() {
		t.Fatalf("balance = %s, want 0", a.Balance())
	}
	a.Credit(dec(t, "12500"))
	if !a.ProfitLoss().Equal(dec(t, "2500")) {
		t.Fatalf("P/L = %s, want 2500", a.ProfitLoss())
	}
}
