package types_test

import (
	"encoding/json"
	"testing"

	types "github.com/okian/vibecoder/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestServiceStatsWireShape(t *testing.T) {
	Convey("Given service stats for an idle driver", t, func() {
		stats := types.ServiceStats{
			Started:    true,
			Subject:    "coherence.>",
			LedgerPath: "data/empathy-ledger.jsonl",
			Policy:     "halt",
			Driver: types.Stats{
				Name:       "driver",
				State:      "awaiting",
				Iterations: map[string]int64{"idle": 3},
			},
		}

		Convey("When encoded", func() {
			raw, err := json.Marshal(stats)
			So(err, ShouldBeNil)

			var decoded map[string]any
			So(json.Unmarshal(raw, &decoded), ShouldBeNil)

			Convey("Then empty driver details should be omitted", func() {
				driver, ok := decoded["driver"].(map[string]any)
				So(ok, ShouldBeTrue)
				So(driver["state"], ShouldEqual, "awaiting")
				So(driver, ShouldNotContainKey, "last_pr")
				So(driver, ShouldNotContainKey, "last_error")
				So(decoded["on_error"], ShouldEqual, "halt")
				So(decoded["started"], ShouldEqual, true)
			})
		})
	})
}
