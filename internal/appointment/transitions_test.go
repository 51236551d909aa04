package appointment

import (
	"errors"
	"testing"
)

func TestEnsureTransition(t *testing.T) {
	cases := []struct {
		from Status
		op   string
		to   Status
		ok   bool
	}{
		{StatusScheduled, OpConfirm, StatusConfirmed, true},
		{StatusScheduled, OpComplete, StatusCompleted, true},
		{StatusScheduled, OpCancel, StatusCancelled, true},
		{StatusScheduled, OpReschedule, StatusRescheduled, true},
		{StatusScheduled, OpMarkNoShow, StatusNoShow, true},

		{StatusConfirmed, OpComplete, StatusCompleted, true},
		{StatusConfirmed, OpCancel, StatusCancelled, true},
		{StatusConfirmed, OpReschedule, StatusRescheduled, true},
		{StatusConfirmed, OpMarkNoShow, StatusNoShow, true},

		// Confirm is only legal once.
		{StatusConfirmed, OpConfirm, "", false},
	}
	for _, c := range cases {
		got, err := ensureTransition(c.from, c.op)
		if c.ok {
			if err != nil {
				t.Errorf("%s from %s: unexpected error %v", c.op, c.from, err)
				continue
			}
			if got != c.to {
				t.Errorf("%s from %s: expected %s, got %s", c.op, c.from, c.to, got)
			}
			continue
		}
		if err == nil {
			t.Errorf("%s from %s: expected error, got %s", c.op, c.from, got)
		}
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	terminals := []Status{StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled}
	ops := []string{OpConfirm, OpComplete, OpCancel, OpReschedule, OpMarkNoShow}

	for _, from := range terminals {
		if !from.Terminal() {
			t.Errorf("expected %s to be terminal", from)
		}
		for _, op := range ops {
			_, err := ensureTransition(from, op)
			var serr *InvalidStateError
			if !errors.As(err, &serr) {
				t.Errorf("%s from %s: expected InvalidStateError, got %v", op, from, err)
				continue
			}
			if serr.Status != from || serr.Operation != op {
				t.Errorf("expected error naming %s/%s, got %s/%s", from, op, serr.Status, serr.Operation)
			}
		}
	}
}

func TestActiveStatuses(t *testing.T) {
	active := map[Status]bool{
		StatusScheduled:   true,
		StatusConfirmed:   true,
		StatusCompleted:   false,
		StatusCancelled:   false,
		StatusNoShow:      false,
		StatusRescheduled: false,
	}
	for status, want := range active {
		if got := status.Active(); got != want {
			t.Errorf("%s.Active() = %v, want %v", status, got, want)
		}
	}
}
