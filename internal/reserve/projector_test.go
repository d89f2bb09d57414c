package reserve

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"fintrack/internal/core"
)

func at(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func add(amount float64, d time.Time) core.ReserveTransaction {
	return core.ReserveTransaction{ReserveID: "r1", Amount: amount, Date: d, Type: core.ReserveAdd}
}

func withdraw(amount float64, d time.Time) core.ReserveTransaction {
	return core.ReserveTransaction{ReserveID: "r1", Amount: amount, Date: d, Type: core.ReserveWithdraw}
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b))
}

// compound applies n days of yield at rate, the same way the projector does.
func compound(balance, rate float64, n int) float64 {
	for i := 0; i < n; i++ {
		balance += balance * rate
	}
	return balance
}

func pointByDate(t *testing.T, res core.ReserveHistoryResult, label string) core.HistoryPoint {
	t.Helper()
	for _, p := range res.Points {
		if p.Date == label {
			return p
		}
	}
	t.Fatalf("no point labelled %s", label)
	return core.HistoryPoint{}
}

func TestProjectCompoundsDailyAcrossMonths(t *testing.T) {
	txs := []core.ReserveTransaction{
		add(1000, at(2025, 1, 1)),
		add(200, at(2025, 1, 15)),
	}
	p := core.NewPeriod(at(2025, 1, 10), at(2025, 2, 5))

	res, err := Project(txs, p, 0.10)
	if err != nil {
		t.Fatalf("Project() error = %v", err)
	}
	if len(res.Points) != 27 {
		t.Fatalf("expected 27 points, got %d", len(res.Points))
	}

	rJan, rFeb := 0.10/31, 0.10/28

	// Jan 10..15 earn yield on the carried-in 1000, then the deposit lands.
	want := compound(1000, rJan, 6) + 200
	if got := pointByDate(t, res, "15/01").Balance; !near(got, want) {
		t.Errorf("15/01 balance = %v, want %v", got, want)
	}

	want = compound(compound(want, rJan, 16), rFeb, 1)
	got := pointByDate(t, res, "01/02").Balance
	if !near(got, want) {
		t.Errorf("01/02 balance = %v, want %v", got, want)
	}
	// A lump 10% on 1200 would give 1320; daily proration over the partial
	// window yields far less.
	if got < 1280 || got > 1300 {
		t.Errorf("01/02 balance %v outside expected range", got)
	}

	beforeLast := compound(want, rFeb, 3)
	wantLast := compound(beforeLast, rFeb, 1)
	last := res.Points[len(res.Points)-1]
	if last.Date != "05/02" || !near(last.Balance, wantLast) {
		t.Errorf("last point = %+v, want 05/02 %v", last, wantLast)
	}
	if !near(res.LastDailyYield, beforeLast*rFeb) {
		t.Errorf("LastDailyYield = %v, want %v", res.LastDailyYield, beforeLast*rFeb)
	}

	if first := res.Points[0]; first.Date != "10/01" || !near(first.Balance, 1000*(1+rJan)) {
		t.Errorf("first point = %+v", first)
	}
}

func TestProjectYieldBeforeSameDayDeposit(t *testing.T) {
	p := core.NewPeriod(at(2025, 3, 1), at(2025, 3, 2))
	res, err := Project([]core.ReserveTransaction{add(500, at(2025, 3, 1).Add(18*time.Hour))}, p, 0.31)
	if err != nil {
		t.Fatal(err)
	}
	// No yield on day one: the opening balance was zero.
	if res.Points[0].Balance != 500 {
		t.Errorf("day one balance = %v, want 500", res.Points[0].Balance)
	}
	if !near(res.Points[1].Balance, 500+500*0.01) {
		t.Errorf("day two balance = %v", res.Points[1].Balance)
	}
	if !near(res.LastDailyYield, 5) {
		t.Errorf("LastDailyYield = %v, want 5", res.LastDailyYield)
	}
}

func TestProjectNonPositiveBalanceResetsYield(t *testing.T) {
	txs := []core.ReserveTransaction{
		add(100, at(2025, 1, 1)),
		withdraw(150, at(2025, 1, 3)),
	}
	p := core.NewPeriod(at(2025, 1, 2), at(2025, 1, 5))
	rate := 0.31
	res, err := Project(txs, p, rate)
	if err != nil {
		t.Fatal(err)
	}

	b2 := compound(100, rate/31, 1)
	b3 := compound(b2, rate/31, 1) - 150
	wants := []float64{b2, b3, b3, b3}
	for i, w := range wants {
		if !near(res.Points[i].Balance, w) {
			t.Errorf("point %d = %v, want %v", i, res.Points[i].Balance, w)
		}
	}
	if res.LastDailyYield != 0 {
		t.Errorf("LastDailyYield = %v, want 0", res.LastDailyYield)
	}
}

func TestProjectZeroRate(t *testing.T) {
	txs := []core.ReserveTransaction{
		add(100, at(2024, 12, 31)),
		add(50, at(2025, 1, 2)),
		withdraw(30, at(2025, 1, 3)),
		add(999, at(2025, 1, 10)), // after the window
	}
	res, err := Project(txs, core.NewPeriod(at(2025, 1, 1), at(2025, 1, 4)), 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []core.HistoryPoint{
		{Date: "01/01", Balance: 100},
		{Date: "02/01", Balance: 150},
		{Date: "03/01", Balance: 120},
		{Date: "04/01", Balance: 120},
	}
	if !reflect.DeepEqual(res.Points, want) {
		t.Errorf("points = %+v, want %+v", res.Points, want)
	}
	if res.LastDailyYield != 0 {
		t.Errorf("LastDailyYield = %v", res.LastDailyYield)
	}
}

func TestProjectSingleDayPeriod(t *testing.T) {
	d := at(2024, 2, 29)
	t.Run("normalized", func(t *testing.T) {
		res, err := Project([]core.ReserveTransaction{add(1000, at(2024, 1, 1))}, core.NewPeriod(d, d), 0.1)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Points) != 1 {
			t.Fatalf("expected 1 point, got %d", len(res.Points))
		}
		// Leap february prorates over 29 days.
		if !near(res.LastDailyYield, 1000*0.1/29) || res.Points[0].Date != "29/02" {
			t.Errorf("got %+v", res)
		}
	})
	t.Run("start equals end", func(t *testing.T) {
		res, err := Project(nil, core.Period{Start: d, End: d}, 0.1)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Points) != 1 || res.Points[0].Balance != 0 || res.LastDailyYield != 0 {
			t.Errorf("got %+v", res)
		}
	})
}

func TestProjectTransactionOnStartIsNotCarriedIn(t *testing.T) {
	start := at(2025, 6, 10)
	res, err := Project([]core.ReserveTransaction{add(300, start)}, core.NewPeriod(start, start.AddDate(0, 0, 1)), 0.3)
	if err != nil {
		t.Fatal(err)
	}
	if res.Points[0].Balance != 300 {
		t.Errorf("day one balance = %v, want 300", res.Points[0].Balance)
	}
	if !near(res.Points[1].Balance, 303) {
		t.Errorf("day two balance = %v, want 303", res.Points[1].Balance)
	}
}

func TestProjectSortsWithoutMutatingInput(t *testing.T) {
	txs := []core.ReserveTransaction{
		add(10, at(2025, 1, 3)),
		add(20, at(2025, 1, 1)),
		withdraw(5, at(2025, 1, 2)),
	}
	orig := append([]core.ReserveTransaction(nil), txs...)
	p := core.NewPeriod(at(2025, 1, 1), at(2025, 1, 3))

	a, err := Project(txs, p, 0.05)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(txs, orig) {
		t.Fatalf("input slice was reordered")
	}

	sorted := []core.ReserveTransaction{orig[1], orig[2], orig[0]}
	b, _ := Project(sorted, p, 0.05)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("order of input changed the result: %+v vs %+v", a, b)
	}

	c, _ := Project(txs, p, 0.05)
	if !reflect.DeepEqual(a, c) {
		t.Errorf("repeated call differs")
	}
}

func TestProjectGroupsByCalendarDayInPeriodLocation(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	p := core.NewPeriod(time.Date(2025, 5, 1, 0, 0, 0, 0, loc), time.Date(2025, 5, 2, 0, 0, 0, 0, loc))
	// 02:00 UTC on May 2 is still May 1 in BRT.
	res, err := Project([]core.ReserveTransaction{add(40, time.Date(2025, 5, 2, 2, 0, 0, 0, time.UTC))}, p, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Points[0].Balance != 40 {
		t.Errorf("01/05 balance = %v, want 40", res.Points[0].Balance)
	}
}

func TestProjectInvalidArguments(t *testing.T) {
	p := core.NewPeriod(at(2025, 1, 1), at(2025, 1, 2))
	if _, err := Project(nil, p, -0.01); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("negative rate: got %v", err)
	}
	inverted := core.NewPeriod(at(2025, 1, 2), at(2025, 1, 1))
	if _, err := Project(nil, inverted, 0.1); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("inverted period: got %v", err)
	}
}

func TestBalance(t *testing.T) {
	txs := []core.ReserveTransaction{
		add(100, at(2025, 1, 1)),
		withdraw(40, at(2025, 1, 5)),
		add(7, at(2025, 1, 10)),
	}
	if got := Balance(txs, at(2025, 1, 10)); got != 60 {
		t.Errorf("Balance = %v, want 60", got)
	}
	if got := Balance(txs, at(2025, 1, 1)); got != 0 {
		t.Errorf("Balance at first date = %v, want 0", got)
	}
}

func TestProjectAll(t *testing.T) {
	p := core.NewPeriod(at(2025, 1, 1), at(2025, 1, 31))
	inputs := []Input{
		{Reserve: core.Reserve{ID: "a", MonthlyYieldRate: 0.01}, Transactions: []core.ReserveTransaction{add(100, at(2024, 12, 1))}, Period: p},
		{Reserve: core.Reserve{ID: "b"}, Transactions: []core.ReserveTransaction{add(5, at(2025, 1, 2))}, Period: p},
		{Reserve: core.Reserve{ID: "c", MonthlyYieldRate: 0.02}, Period: p},
	}

	out, err := ProjectAll(context.Background(), inputs, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i, in := range inputs {
		want, _ := Project(in.Transactions, in.Period, in.Reserve.MonthlyYieldRate)
		if out[i].Reserve.ID != in.Reserve.ID || !reflect.DeepEqual(out[i].History, want) {
			t.Errorf("output %d does not match a direct projection", i)
		}
	}

	inputs[1].Reserve.MonthlyYieldRate = -1
	if _, err := ProjectAll(context.Background(), inputs, 0); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}
