package gateway

import (
	"testing"

	"femasflow/internal/models"
	"femasflow/internal/ustp"
)

func TestOffsetCrossMapping(t *testing.T) {
	if offsetToUSTP[models.OffsetCloseToday] != ustp.OffsetFlagCloseYesterday {
		t.Errorf("CLOSE_TODAY must map to the close-yesterday code")
	}
	if offsetToUSTP[models.OffsetCloseYesterday] != ustp.OffsetFlagCloseToday {
		t.Errorf("CLOSE_YESTERDAY must map to the close-today code")
	}
	// The reverse table mirrors the cross-wiring.
	if offsetFromUSTP[ustp.OffsetFlagCloseYesterday] != models.OffsetCloseToday {
		t.Errorf("reverse mapping broken for close-yesterday code")
	}
	if _, ok := offsetToUSTP[models.OffsetNone]; ok {
		t.Errorf("the empty offset must have no protocol code")
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		code byte
		want models.Status
	}{
		{ustp.OrderSubmitted, models.StatusSubmitting},
		{ustp.OrderAccepted, models.StatusSubmitting},
		{ustp.OrderRejected, models.StatusRejected},
		{ustp.OrderNoTradeQueueing, models.StatusNotTraded},
		{ustp.OrderPartTradedQueueing, models.StatusPartTraded},
		{ustp.OrderAllTraded, models.StatusAllTraded},
		{ustp.OrderCanceled, models.StatusCancelled},
	}
	for _, c := range cases {
		if got := statusFromUSTP[c.code]; got != c.want {
			t.Errorf("status %q = %q, want %q", c.code, got, c.want)
		}
	}
	if _, ok := statusFromUSTP[ustp.OrderPartTradedNotQueue]; ok {
		t.Errorf("part-traded-not-queueing has no normalized status")
	}
}

func TestDirectionRoundTrip(t *testing.T) {
	for _, d := range []models.Direction{models.DirectionLong, models.DirectionShort} {
		code, ok := directionToUSTP[d]
		if !ok {
			t.Fatalf("direction %q has no code", d)
		}
		if back := directionFromUSTP[code]; back != d {
			t.Errorf("direction %q round-trips to %q", d, back)
		}
	}
}

func TestParseExchangeTime(t *testing.T) {
	ts, err := parseExchangeTime("20230908", "10:30:15")
	if err != nil {
		t.Fatalf("parseExchangeTime failed: %v", err)
	}
	if ts.Year() != 2023 || ts.Month() != 9 || ts.Day() != 8 {
		t.Errorf("unexpected date: %v", ts)
	}
	if ts.Hour() != 10 || ts.Minute() != 30 || ts.Second() != 15 {
		t.Errorf("unexpected time of day: %v", ts)
	}
	if ts.Location() != chinaTZ {
		t.Errorf("timestamp not in exchange timezone")
	}

	if _, err := parseExchangeTime("", "10:30:15"); err == nil {
		t.Errorf("expected error for empty date")
	}
}
