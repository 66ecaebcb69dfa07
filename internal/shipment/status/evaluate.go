package status

import (
	"fmt"
	"time"
)

// SnapshotSchemaVersion tags the audit snapshot blob so forensic replay stays
// stable as the snapshot shape evolves.
const SnapshotSchemaVersion = 1

// Clock supplies "now" so evaluation stays deterministic under frozen time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Evaluator derives a shipment's lifecycle stage from a fact snapshot. Pure,
// total, deterministic, no I/O.
type Evaluator struct {
	clock Clock
}

func NewEvaluator(clock Clock) *Evaluator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Evaluator{clock: clock}
}

// Evaluate runs the predicate chain against the injected clock's current day.
func (e *Evaluator) Evaluate(snap Snapshot) Result {
	return EvaluateAt(snap, e.clock.Now())
}

// EvaluateAt is the evaluation core. The chain is priority-ordered and
// re-evaluated from scratch on every call, so status can move in either
// direction as facts change. Stored dates carry no time zone, so all date
// comparisons are calendar-day comparisons against the day of "now" in its
// own location, never instant comparisons.
func EvaluateAt(snap Snapshot, now time.Time) Result {
	today := FormatDate(now)

	res := Result{
		Snapshot:      snap,
		SchemaVersion: SnapshotSchemaVersion,
	}

	// 1. Warehouse receipt confirmation dominates everything else. Once the
	//    warehouse has confirmed, no other fact can move the shipment out of
	//    the terminal pair.
	if rc := snap.Receipt(); rc.Confirmed {
		res.Trigger = TriggerWarehouseConfirm
		if rc.HasIssues {
			res.Status = StatusQualityIssue
			res.ReasonEN = "Warehouse receipt confirmed with quality issues"
			res.ReasonZH = "仓库确认收货，存在质量问题"
			return res
		}
		res.Status = StatusReceived
		res.ReasonEN = "Warehouse receipt confirmed"
		res.ReasonZH = "仓库已确认收货"
		return res
	}

	// 2. Customs clearance recorded: the shipment is past the port stage.
	if snap.CustomsClearanceDate != nil {
		res.Trigger = TriggerDataChange
		cleared := FormatDate(*snap.CustomsClearanceDate)
		if snap.TransportAssigned {
			res.Status = StatusLoadedToFinal
			res.ReasonEN = fmt.Sprintf("Customs cleared on %s, loaded for final delivery", cleared)
			res.ReasonZH = fmt.Sprintf("已于%s清关，已装车发往目的仓", cleared)
			return res
		}
		res.Status = StatusPendingTransport
		res.ReasonEN = fmt.Sprintf("Customs cleared on %s, awaiting transport assignment", cleared)
		res.ReasonZH = fmt.Sprintf("已于%s清关，待安排运输", cleared)
		return res
	}

	hasBL := snap.BillOfLadingNo != ""

	// 3. / 4. A bill of lading plus an ETA means the shipment has departed;
	//    whether the ETA day has arrived decides which side of the port it is on.
	if hasBL && snap.ETA != nil {
		eta := FormatDate(*snap.ETA)
		if eta <= today {
			res.Status = StatusAwaitingClearance
			res.Trigger = TriggerDateCheck
			res.ReasonEN = fmt.Sprintf("ETA %s reached, awaiting customs clearance", eta)
			res.ReasonZH = fmt.Sprintf("预计到港日%s已到，待清关", eta)
			return res
		}
		res.Status = StatusSailed
		res.Trigger = TriggerDataChange
		res.ReasonEN = fmt.Sprintf("Sailed under B/L %s, ETA %s", snap.BillOfLadingNo, eta)
		res.ReasonZH = fmt.Sprintf("已开船，提单号%s，预计到港%s", snap.BillOfLadingNo, eta)
		return res
	}

	// 5. No bill of lading after the agreed shipping date has passed.
	if snap.AgreedShippingDate != nil && !hasBL {
		agreed := FormatDate(*snap.AgreedShippingDate)
		if agreed < today {
			days := daysBetween(*snap.AgreedShippingDate, now)
			unit := "days"
			if days == 1 {
				unit = "day"
			}
			res.Status = StatusDelayed
			res.Trigger = TriggerDateCheck
			res.ReasonEN = fmt.Sprintf("Delayed: %d %s past agreed shipping date %s, no bill of lading", days, unit, agreed)
			res.ReasonZH = fmt.Sprintf("已延误：超过约定船期%d天，尚无提单", days)
			return res
		}
	}

	// 6. Planning. The sub-cases only sharpen the human-readable reason; the
	//    status value is the same for all three.
	res.Status = StatusPlanning
	res.Trigger = TriggerInitial
	switch {
	case !hasBL && snap.ETA == nil:
		res.ReasonEN = "In planning: awaiting bill of lading and ETA"
		res.ReasonZH = "计划中：待提单与预计到港日"
	case !hasBL:
		res.ReasonEN = "In planning: awaiting bill of lading"
		res.ReasonZH = "计划中：待提单"
	default:
		res.ReasonEN = "In planning: awaiting ETA"
		res.ReasonZH = "计划中：待预计到港日"
	}
	return res
}

// daysBetween counts whole calendar days from the day of a to the day of b.
// Both days are rebuilt as UTC midnights first, so the count is exact across
// time zones and DST shifts.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	start := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	end := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start) / (24 * time.Hour))
}
