package appointment

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/careledger/careledger/internal/ledger"
)

// overlaps reports whether the half-open intervals [s1,e1) and [s2,e2)
// intersect. Inputs are canonical HH:MM strings, which order
// lexicographically. Back-to-back appointments sharing a boundary do not
// overlap.
func overlaps(s1, e1, s2, e2 string) bool {
	return s1 < e2 && e1 > s2
}

// checkSlotFree scans the doctor's active appointments on the given date and
// fails with ConflictError when any of them overlaps [start, end). The
// excludeID carve-out lets a reschedule ignore the appointment it is
// vacating.
func checkSlotFree(store ledger.Store, doctorID, date, start, end, excludeID string) error {
	kvs, err := store.Query(ledger.Query{
		Prefix: keyPrefix,
		Conds: []ledger.Cond{
			ledger.Eq("doctorId", doctorID),
			ledger.Eq("appointmentDate", date),
			ledger.In("status", string(StatusScheduled), string(StatusConfirmed)),
		},
	})
	if err != nil {
		return fmt.Errorf("scan doctor schedule: %w", err)
	}
	var clashing []string
	for _, kv := range kvs {
		other, err := decodeAppointment(kv.Value)
		if err != nil {
			return err
		}
		if other.AppointmentID == excludeID {
			continue
		}
		if overlaps(start, end, other.StartTime, other.EndTime) {
			clashing = append(clashing, other.AppointmentID)
		}
	}
	if len(clashing) > 0 {
		sort.Strings(clashing)
		return &ConflictError{AppointmentIDs: clashing}
	}
	return nil
}

// Reservation keys.
//
// Rich queries are not part of the read set, so two transactions booking the
// same doctor concurrently would both pass checkSlotFree and both commit. To
// close that gap every active appointment also holds one reservation key per
// time bucket it covers. Reserving reads the key before writing it, which
// pins its version; when two in-flight transactions cover a common bucket,
// the second commit fails validation and is retried, and the retry sees the
// winner through checkSlotFree. The keys are a concurrency device only, the
// appointment documents remain the source of truth.

const slotPrefix = "slot:"

func slotKey(doctorID, date string, bucket int) string {
	return fmt.Sprintf("%s%s:%s:%04d", slotPrefix, doctorID, date, bucket)
}

// slotBuckets lists the starting minute of every granule-sized bucket touched
// by [startMin, endMin).
func slotBuckets(startMin, endMin, granule int) []int {
	var buckets []int
	for b := (startMin / granule) * granule; b < endMin; b += granule {
		buckets = append(buckets, b)
	}
	return buckets
}

func reserveSlots(store ledger.Store, doctorID, date string, startMin, endMin, granule int, appointmentID string) error {
	for _, b := range slotBuckets(startMin, endMin, granule) {
		key := slotKey(doctorID, date, b)
		holders, err := readSlotHolders(store, key)
		if err != nil {
			return err
		}
		if !containsString(holders, appointmentID) {
			holders = append(holders, appointmentID)
			sort.Strings(holders)
		}
		if err := writeSlotHolders(store, key, holders); err != nil {
			return err
		}
	}
	return nil
}

func releaseSlots(store ledger.Store, doctorID, date string, startMin, endMin, granule int, appointmentID string) error {
	for _, b := range slotBuckets(startMin, endMin, granule) {
		key := slotKey(doctorID, date, b)
		holders, err := readSlotHolders(store, key)
		if err != nil {
			return err
		}
		kept := holders[:0]
		for _, h := range holders {
			if h != appointmentID {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			if err := store.DelState(key); err != nil {
				return fmt.Errorf("release slot %s: %w", key, err)
			}
			continue
		}
		if err := writeSlotHolders(store, key, kept); err != nil {
			return err
		}
	}
	return nil
}

func readSlotHolders(store ledger.Store, key string) ([]string, error) {
	raw, err := store.GetState(key)
	if err != nil {
		return nil, fmt.Errorf("read slot %s: %w", key, err)
	}
	if raw == nil {
		return nil, nil
	}
	var holders []string
	if err := json.Unmarshal(raw, &holders); err != nil {
		return nil, fmt.Errorf("decode slot %s: %w", key, err)
	}
	return holders, nil
}

func writeSlotHolders(store ledger.Store, key string, holders []string) error {
	raw, err := json.Marshal(holders)
	if err != nil {
		return fmt.Errorf("encode slot %s: %w", key, err)
	}
	if err := store.PutState(key, raw); err != nil {
		return fmt.Errorf("write slot %s: %w", key, err)
	}
	return nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
