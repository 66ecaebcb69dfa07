package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// =============================================================================
// Evaluator Test Suite
// =============================================================================
// Justification for unit tests: the evaluator is the decision core of the
// status engine. Every branch of the predicate chain, the priority ordering,
// and the date-edge behavior must be pinned down under frozen time, which is
// impractical through HTTP-level tests.

type EvaluatorSuite struct {
	suite.Suite
}

func TestEvaluatorSuite(t *testing.T) {
	suite.Run(t, new(EvaluatorSuite))
}

func day(s string) *time.Time {
	t := ParseDate(s)
	if t == nil {
		panic("bad test date: " + s)
	}
	return t
}

// at builds a mid-day timestamp so tests prove "today" is normalized to the
// start of the day before any comparison.
func at(s string) time.Time {
	return day(s).Add(13*time.Hour + 45*time.Minute)
}

func confirmed(snap Snapshot, hasIssues bool) Snapshot {
	return ConfirmedSnapshot(snap, ReceiptConfirmation{Confirmed: true, HasIssues: hasIssues})
}

// =============================================================================
// Priority Chain
// =============================================================================

func (s *EvaluatorSuite) TestReceiptConfirmationDominates() {
	// Every other fact populated; confirmation must still win.
	base := Snapshot{
		ShipmentID:           "shp-1",
		BillOfLadingNo:       "MEDU123",
		ETA:                  day("2020-01-01"),
		AgreedShippingDate:   day("2019-12-01"),
		CustomsClearanceDate: day("2024-05-01"),
		TransportAssigned:    true,
	}

	s.Run("clean receipt lands on received", func() {
		res := EvaluateAt(confirmed(base, false), at("2024-06-01"))
		s.Equal(StatusReceived, res.Status)
		s.Equal(TriggerWarehouseConfirm, res.Trigger)
		s.Contains(res.ReasonEN, "confirmed")
	})

	s.Run("receipt with issues lands on quality_issue", func() {
		res := EvaluateAt(confirmed(base, true), at("2024-06-01"))
		s.Equal(StatusQualityIssue, res.Status)
		s.Equal(TriggerWarehouseConfirm, res.Trigger)
	})
}

func (s *EvaluatorSuite) TestClearanceBeatsSailingFacts() {
	base := Snapshot{
		ShipmentID:           "shp-2",
		BillOfLadingNo:       "MEDU123",
		ETA:                  day("2099-01-01"),
		CustomsClearanceDate: day("2024-05-01"),
	}

	s.Run("without transport assigned", func() {
		res := EvaluateAt(base, at("2024-05-02"))
		s.Equal(StatusPendingTransport, res.Status)
		s.Equal(TriggerDataChange, res.Trigger)
		s.Contains(res.ReasonEN, "2024-05-01")
	})

	s.Run("with transport assigned", func() {
		snap := base
		snap.TransportAssigned = true
		res := EvaluateAt(snap, at("2024-05-02"))
		s.Equal(StatusLoadedToFinal, res.Status)
		s.Contains(res.ReasonEN, "2024-05-01")
	})
}

// =============================================================================
// Sailing and ETA Edges
// =============================================================================

func (s *EvaluatorSuite) TestSailedAndAwaitingClearance() {
	snap := Snapshot{ShipmentID: "shp-3", BillOfLadingNo: "MEDU123"}

	s.Run("future eta means sailed", func() {
		snap.ETA = day("2099-01-01")
		res := EvaluateAt(snap, at("2024-06-01"))
		s.Equal(StatusSailed, res.Status)
		s.Equal(TriggerDataChange, res.Trigger)
		s.Contains(res.ReasonEN, "MEDU123")
		s.Contains(res.ReasonEN, "2099-01-01")
	})

	s.Run("past eta means awaiting clearance", func() {
		snap.ETA = day("2020-01-01")
		res := EvaluateAt(snap, at("2024-06-01"))
		s.Equal(StatusAwaitingClearance, res.Status)
		s.Equal(TriggerDateCheck, res.Trigger)
	})

	s.Run("eta on today counts as arrived", func() {
		snap.ETA = day("2024-06-01")
		res := EvaluateAt(snap, at("2024-06-01"))
		s.Equal(StatusAwaitingClearance, res.Status)
	})

	s.Run("eta tomorrow is still sailing", func() {
		snap.ETA = day("2024-06-02")
		res := EvaluateAt(snap, at("2024-06-01"))
		s.Equal(StatusSailed, res.Status)
	})
}

// =============================================================================
// Delay Detection
// =============================================================================

func (s *EvaluatorSuite) TestDelayed() {
	s.Run("ten days past agreed date with no bill of lading", func() {
		snap := Snapshot{ShipmentID: "shp-4", AgreedShippingDate: day("2024-01-01")}
		res := EvaluateAt(snap, at("2024-01-11"))
		s.Equal(StatusDelayed, res.Status)
		s.Equal(TriggerDateCheck, res.Trigger)
		s.Contains(res.ReasonEN, "10 days")
		s.Contains(res.ReasonEN, "2024-01-01")
		s.Contains(res.ReasonZH, "10")
	})

	s.Run("agreed date today is not yet delayed", func() {
		snap := Snapshot{ShipmentID: "shp-4", AgreedShippingDate: day("2024-01-11")}
		res := EvaluateAt(snap, at("2024-01-11"))
		s.Equal(StatusPlanning, res.Status)
	})

	s.Run("one day past agreed date", func() {
		snap := Snapshot{ShipmentID: "shp-4", AgreedShippingDate: day("2024-01-10")}
		res := EvaluateAt(snap, at("2024-01-11"))
		s.Equal(StatusDelayed, res.Status)
		s.Contains(res.ReasonEN, "1 day past")
		s.NotContains(res.ReasonEN, "1 days")
	})

	s.Run("bill of lading clears the delay", func() {
		// BL present but no ETA: not sailed yet, but no longer counted late.
		snap := Snapshot{
			ShipmentID:         "shp-4",
			BillOfLadingNo:     "MEDU123",
			AgreedShippingDate: day("2024-01-01"),
		}
		res := EvaluateAt(snap, at("2024-01-11"))
		s.Equal(StatusPlanning, res.Status)
	})

	s.Run("day count survives a dst boundary", func() {
		loc, err := time.LoadLocation("Europe/Berlin")
		s.Require().NoError(err)
		agreed := time.Date(2024, 3, 25, 0, 0, 0, 0, loc)
		now := time.Date(2024, 4, 4, 15, 0, 0, 0, loc)
		snap := Snapshot{ShipmentID: "shp-4", AgreedShippingDate: &agreed}
		res := EvaluateAt(snap, now)
		s.Equal(StatusDelayed, res.Status)
		s.Contains(res.ReasonEN, "10 days")
	})
}

// =============================================================================
// Calendar Days Across Time Zones
// =============================================================================
// Stored dates parse as UTC midnights while the clock runs in the deployment's
// zone. Date branches must compare calendar days, not instants, or the day
// boundaries shift by the UTC offset.

func (s *EvaluatorSuite) TestDateComparisonsAcrossZones() {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	s.Require().NoError(err)
	newYork, err := time.LoadLocation("America/New_York")
	s.Require().NoError(err)

	s.Run("eta day arrives on local calendar day ahead of utc", func() {
		// 10:00 in Shanghai on the ETA day is still 02:00 UTC the same day.
		snap := Snapshot{ShipmentID: "shp-9", BillOfLadingNo: "MEDU123", ETA: day("2024-06-01")}
		now := time.Date(2024, 6, 1, 10, 0, 0, 0, shanghai)
		res := EvaluateAt(snap, now)
		s.Equal(StatusAwaitingClearance, res.Status)
	})

	s.Run("agreed day itself is not delayed behind utc", func() {
		// 10:00 in New York on the agreed day is already past UTC midnight of
		// the next day's instant, but locally the day has not passed.
		snap := Snapshot{ShipmentID: "shp-9", AgreedShippingDate: day("2024-06-01")}
		now := time.Date(2024, 6, 1, 10, 0, 0, 0, newYork)
		res := EvaluateAt(snap, now)
		s.Equal(StatusPlanning, res.Status)
	})

	s.Run("delay count is exact across zones", func() {
		snap := Snapshot{ShipmentID: "shp-9", AgreedShippingDate: day("2024-01-01")}

		res := EvaluateAt(snap, time.Date(2024, 1, 11, 9, 0, 0, 0, shanghai))
		s.Equal(StatusDelayed, res.Status)
		s.Contains(res.ReasonEN, "10 days")

		res = EvaluateAt(snap, time.Date(2024, 1, 2, 9, 0, 0, 0, newYork))
		s.Equal(StatusDelayed, res.Status)
		s.Contains(res.ReasonEN, "1 day past")
	})
}

// =============================================================================
// Planning Fallback
// =============================================================================

func (s *EvaluatorSuite) TestPlanningReasons() {
	s.Run("nothing known", func() {
		res := EvaluateAt(Snapshot{ShipmentID: "shp-5"}, at("2024-06-01"))
		s.Equal(StatusPlanning, res.Status)
		s.Equal(TriggerInitial, res.Trigger)
		s.Contains(res.ReasonEN, "bill of lading and ETA")
	})

	s.Run("eta known but no bill of lading", func() {
		snap := Snapshot{ShipmentID: "shp-5", ETA: day("2099-01-01")}
		res := EvaluateAt(snap, at("2024-06-01"))
		s.Equal(StatusPlanning, res.Status)
		s.Contains(res.ReasonEN, "awaiting bill of lading")
		s.NotContains(res.ReasonEN, "ETA")
	})

	s.Run("bill of lading known but no eta", func() {
		snap := Snapshot{ShipmentID: "shp-5", BillOfLadingNo: "MEDU123"}
		res := EvaluateAt(snap, at("2024-06-01"))
		s.Equal(StatusPlanning, res.Status)
		s.Contains(res.ReasonEN, "awaiting ETA")
	})
}

// =============================================================================
// Specified Scenarios
// =============================================================================

func (s *EvaluatorSuite) TestReferenceScenarios() {
	now := at("2024-06-15")

	cases := []struct {
		name string
		snap Snapshot
		now  time.Time
		want Status
	}{
		{
			name: "agreed date ten days back, nothing shipped",
			snap: Snapshot{AgreedShippingDate: day("2024-01-01")},
			now:  at("2024-01-11"),
			want: StatusDelayed,
		},
		{
			name: "bl with far future eta",
			snap: Snapshot{BillOfLadingNo: "MEDU123", ETA: day("2099-01-01")},
			now:  now,
			want: StatusSailed,
		},
		{
			name: "bl with past eta",
			snap: Snapshot{BillOfLadingNo: "MEDU123", ETA: day("2020-01-01")},
			now:  now,
			want: StatusAwaitingClearance,
		},
		{
			name: "cleared without transport",
			snap: Snapshot{CustomsClearanceDate: day("2024-05-01")},
			now:  now,
			want: StatusPendingTransport,
		},
		{
			name: "cleared with transport",
			snap: Snapshot{CustomsClearanceDate: day("2024-05-01"), TransportAssigned: true},
			now:  now,
			want: StatusLoadedToFinal,
		},
		{
			name: "confirmed receipt beats every other fact",
			snap: confirmed(Snapshot{
				BillOfLadingNo:       "MEDU123",
				ETA:                  day("2020-01-01"),
				CustomsClearanceDate: day("2024-05-01"),
				TransportAssigned:    true,
			}, false),
			now:  now,
			want: StatusReceived,
		},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			res := EvaluateAt(tc.snap, tc.now)
			s.Equal(tc.want, res.Status)
			s.NotEmpty(res.ReasonEN)
			s.NotEmpty(res.ReasonZH)
			s.Equal(SnapshotSchemaVersion, res.SchemaVersion)
		})
	}
}

// =============================================================================
// Purity and Clock Injection
// =============================================================================

func (s *EvaluatorSuite) TestEvaluationIsPure() {
	snap := Snapshot{
		ShipmentID:         "shp-6",
		AgreedShippingDate: day("2024-01-01"),
	}
	now := at("2024-01-11")

	first := EvaluateAt(snap, now)
	for i := 0; i < 5; i++ {
		s.Equal(first, EvaluateAt(snap, now))
	}
	// The input snapshot is untouched.
	s.Equal("shp-6", snap.ShipmentID)
	s.Equal("2024-01-01", FormatDate(*snap.AgreedShippingDate))
}

type frozenClock struct{ t time.Time }

func (c frozenClock) Now() time.Time { return c.t }

func (s *EvaluatorSuite) TestEvaluatorUsesInjectedClock() {
	snap := Snapshot{ShipmentID: "shp-7", AgreedShippingDate: day("2024-01-01")}

	past := NewEvaluator(frozenClock{t: at("2023-12-01")})
	s.Equal(StatusPlanning, past.Evaluate(snap).Status)

	future := NewEvaluator(frozenClock{t: at("2024-01-11")})
	s.Equal(StatusDelayed, future.Evaluate(snap).Status)
}

func (s *EvaluatorSuite) TestParseDate() {
	s.Run("valid date", func() {
		t := ParseDate("2024-05-01")
		s.Require().NotNil(t)
		s.Equal("2024-05-01", FormatDate(*t))
	})

	s.Run("blank and malformed values are absent", func() {
		s.Nil(ParseDate(""))
		s.Nil(ParseDate("01/05/2024"))
		s.Nil(ParseDate("2024-13-40"))
		s.Nil(ParseDate("not a date"))
	})

	s.Run("malformed eta falls back to planning", func() {
		// The loader maps parse failure to an absent field; with no ETA the
		// shipment cannot be considered sailed.
		snap := Snapshot{ShipmentID: "shp-8", BillOfLadingNo: "MEDU123", ETA: ParseDate("garbage")}
		res := EvaluateAt(snap, at("2024-06-01"))
		s.Equal(StatusPlanning, res.Status)
	})
}
