package lifecycle

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/starford/tramites/internal/record"
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// window builds valid boundaries from hour offsets: every gap is at least one hour.
func window(startH, primaryH, gapH, remediationH int64) Boundaries {
	start := epoch.Add(time.Duration(startH) * time.Hour)
	end := start.Add(time.Duration(primaryH) * time.Hour)
	rs := end.Add(time.Duration(gapH) * time.Hour)
	re := rs.Add(time.Duration(remediationH) * time.Hour)
	return Boundaries{
		Start:            record.Date{Time: start},
		End:              record.Date{Time: end},
		RemediationStart: record.Date{Time: rs},
		RemediationEnd:   record.Date{Time: re},
	}
}

func params() *gopter.TestParameters {
	p := gopter.DefaultTestParameters()
	p.MinSuccessfulTests = 200
	return p
}

func TestDeriveProperties(t *testing.T) {
	properties := gopter.NewProperties(params())

	hours := gen.Int64Range(1, 24*400)
	offset := gen.Int64Range(0, 24*2000)

	properties.Property("valid boundaries are accepted by Check", prop.ForAll(
		func(s, p, g, r int64) bool {
			return len(window(s, p, g, r).Check()) == 0
		},
		offset, hours, hours, hours,
	))

	properties.Property("before start is PENDING", prop.ForAll(
		func(s, p, g, r, back int64) bool {
			b := window(s, p, g, r)
			now := b.Start.Add(-time.Duration(back) * time.Minute)
			return Derive(b, OverrideNone, now) == StatusPending
		},
		offset, hours, hours, hours, gen.Int64Range(1, 1<<20),
	))

	properties.Property("within primary window is ACTIVE", prop.ForAll(
		func(s, p, g, r int64, frac float64) bool {
			b := window(s, p, g, r)
			span := b.End.Sub(b.Start.Time)
			now := b.Start.Add(time.Duration(float64(span) * frac))
			return Derive(b, OverrideNone, now) == StatusActive
		},
		offset, hours, hours, hours, gen.Float64Range(0, 1),
	))

	properties.Property("within remediation window is REMEDIATION", prop.ForAll(
		func(s, p, g, r int64, frac float64) bool {
			b := window(s, p, g, r)
			span := b.RemediationEnd.Sub(b.RemediationStart.Time)
			now := b.RemediationStart.Add(time.Duration(float64(span) * frac))
			return Derive(b, OverrideNone, now) == StatusRemediation
		},
		offset, hours, hours, hours, gen.Float64Range(0, 1),
	))

	properties.Property("after remediation end is FINISHED", prop.ForAll(
		func(s, p, g, r, after int64) bool {
			b := window(s, p, g, r)
			now := b.RemediationEnd.Add(time.Duration(after) * time.Minute)
			return Derive(b, OverrideNone, now) == StatusFinished
		},
		offset, hours, hours, hours, gen.Int64Range(1, 1<<20),
	))

	properties.Property("any missing boundary is NO_DATES", prop.ForAll(
		func(s, p, g, r int64, missing int, now int64) bool {
			b := window(s, p, g, r)
			switch missing % 4 {
			case 0:
				b.Start = record.Date{}
			case 1:
				b.End = record.Date{}
			case 2:
				b.RemediationStart = record.Date{}
			default:
				b.RemediationEnd = record.Date{}
			}
			at := epoch.Add(time.Duration(now) * time.Hour)
			return Derive(b, OverrideNone, at) == StatusNoDates &&
				Derive(b, OverrideActive, at) == StatusNoDates
		},
		offset, hours, hours, hours, gen.IntRange(0, 3), offset,
	))

	properties.TestingRun(t)
}
