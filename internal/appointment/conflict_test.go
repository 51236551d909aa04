package appointment

import (
	"context"
	"errors"
	"testing"

	"github.com/careledger/careledger/internal/ledger"
)

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name           string
		s1, e1, s2, e2 string
		want           bool
	}{
		{"identical", "09:00", "09:30", "09:00", "09:30", true},
		{"partial tail", "09:00", "09:30", "09:15", "09:45", true},
		{"partial head", "09:15", "09:45", "09:00", "09:30", true},
		{"contained", "09:00", "10:00", "09:15", "09:30", true},
		{"containing", "09:15", "09:30", "09:00", "10:00", true},
		{"disjoint before", "08:00", "08:30", "09:00", "09:30", false},
		{"disjoint after", "10:00", "10:30", "09:00", "09:30", false},
		{"back to back", "09:00", "09:30", "09:30", "10:00", false},
		{"back to back reversed", "09:30", "10:00", "09:00", "09:30", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := overlaps(c.s1, c.e1, c.s2, c.e2); got != c.want {
				t.Errorf("overlaps(%s-%s, %s-%s) = %v, want %v", c.s1, c.e1, c.s2, c.e2, got, c.want)
			}
		})
	}
}

func TestSlotBuckets(t *testing.T) {
	cases := []struct {
		name             string
		startMin, endMin int
		granule          int
		want             []int
	}{
		{"aligned", 600, 630, 5, []int{600, 605, 610, 615, 620, 625}},
		{"unaligned start", 603, 615, 5, []int{600, 605, 610}},
		{"single bucket", 600, 601, 5, []int{600}},
		{"coarse granule", 600, 660, 30, []int{600, 630}},
		{"quarter hour", 540, 585, 15, []int{540, 555, 570}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := slotBuckets(c.startMin, c.endMin, c.granule)
			if len(got) != len(c.want) {
				t.Fatalf("expected %v, got %v", c.want, got)
			}
			for i := range c.want {
				if got[i] != c.want[i] {
					t.Fatalf("expected %v, got %v", c.want, got)
				}
			}
		})
	}
}

func TestReserveAndReleaseSlots(t *testing.T) {
	led := ledger.New(ledger.NewMemStateDB())
	ctx := context.Background()

	_, err := led.Submit(ctx, "test", func(tx ledger.TxContext) error {
		if err := reserveSlots(tx, "DOC-1", "2025-06-10", 600, 615, 5, "APT-B"); err != nil {
			return err
		}
		// Overlapping reservation in the same transaction shares buckets.
		return reserveSlots(tx, "DOC-1", "2025-06-10", 610, 620, 5, "APT-A")
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	readSlot := func(bucket int) string {
		var raw []byte
		err := led.View(ctx, "test", func(tx ledger.TxContext) error {
			var err error
			raw, err = tx.GetState(slotKey("DOC-1", "2025-06-10", bucket))
			return err
		})
		if err != nil {
			t.Fatalf("read slot %d: %v", bucket, err)
		}
		return string(raw)
	}

	if got := readSlot(600); got != `["APT-B"]` {
		t.Errorf("bucket 600: expected single holder, got %s", got)
	}
	// Shared buckets list holders in sorted order.
	if got := readSlot(610); got != `["APT-A","APT-B"]` {
		t.Errorf("bucket 610: expected both holders sorted, got %s", got)
	}
	if got := readSlot(615); got != `["APT-A"]` {
		t.Errorf("bucket 615: expected single holder, got %s", got)
	}

	_, err = led.Submit(ctx, "test", func(tx ledger.TxContext) error {
		return releaseSlots(tx, "DOC-1", "2025-06-10", 600, 615, 5, "APT-B")
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}

	// Vacated buckets are deleted, shared buckets keep the other holder.
	if got := readSlot(600); got != "" {
		t.Errorf("bucket 600: expected deletion, got %s", got)
	}
	if got := readSlot(610); got != `["APT-A"]` {
		t.Errorf("bucket 610: expected remaining holder, got %s", got)
	}
}

func TestReserveIsIdempotentPerAppointment(t *testing.T) {
	led := ledger.New(ledger.NewMemStateDB())
	ctx := context.Background()

	_, err := led.Submit(ctx, "test", func(tx ledger.TxContext) error {
		if err := reserveSlots(tx, "DOC-1", "2025-06-10", 600, 605, 5, "APT-A"); err != nil {
			return err
		}
		return reserveSlots(tx, "DOC-1", "2025-06-10", 600, 605, 5, "APT-A")
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	err = led.View(ctx, "test", func(tx ledger.TxContext) error {
		raw, err := tx.GetState(slotKey("DOC-1", "2025-06-10", 600))
		if err != nil {
			return err
		}
		if string(raw) != `["APT-A"]` {
			t.Errorf("expected one holder entry, got %s", raw)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestOverlappingReservationsConflictAcrossTransactions(t *testing.T) {
	led := ledger.New(ledger.NewMemStateDB())
	ctx := context.Background()

	// Two bookings covering a common bucket race: reserving reads the bucket
	// before writing it, so the interleaved commit invalidates this one.
	_, err := led.Submit(ctx, "alice", func(tx ledger.TxContext) error {
		if err := reserveSlots(tx, "DOC-1", "2025-06-10", 600, 630, 5, "APT-A"); err != nil {
			return err
		}
		_, err := led.Submit(ctx, "bob", func(tx2 ledger.TxContext) error {
			return reserveSlots(tx2, "DOC-1", "2025-06-10", 615, 645, 5, "APT-B")
		})
		return err
	})
	if !errors.Is(err, ledger.ErrTxConflict) {
		t.Fatalf("expected ErrTxConflict from the racing reservation, got %v", err)
	}
}

func TestDisjointReservationsDoNotConflict(t *testing.T) {
	led := ledger.New(ledger.NewMemStateDB())
	ctx := context.Background()

	_, err := led.Submit(ctx, "alice", func(tx ledger.TxContext) error {
		if err := reserveSlots(tx, "DOC-1", "2025-06-10", 600, 630, 5, "APT-A"); err != nil {
			return err
		}
		_, err := led.Submit(ctx, "bob", func(tx2 ledger.TxContext) error {
			return reserveSlots(tx2, "DOC-1", "2025-06-10", 630, 660, 5, "APT-B")
		})
		return err
	})
	if err != nil {
		t.Fatalf("expected disjoint reservations to commit, got %v", err)
	}
}
