package influx

import (
	"strconv"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/rlpredict/rlpredict/pkg/core"
)

// PredictionPoint records how long one prediction took and where it ends.
func PredictionPoint(mode string, p core.Prediction, at time.Time) *influxdb2_write.Point {
	point := influxdb2_write.NewPoint("prediction",
		map[string]string{"mode": mode},
		map[string]interface{}{
			"frame":      int64(p.Frame),
			"samples":    len(p.Samples),
			"compute_ms": float64(p.ComputeTime.Microseconds()) / 1000,
		},
		at)
	if p.Goal != nil {
		point.AddTag("goal_team", strconv.Itoa(p.Goal.Team))
		point.AddField("goal_time", p.Goal.Time-p.StartTime)
	}
	return point
}

// DriftPoint records how far a prediction strayed from the observed ball.
func DriftPoint(mode string, d core.DriftSample, at time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPoint("drift",
		map[string]string{"mode": mode},
		map[string]interface{}{
			"frame":          int64(d.Frame),
			"lookahead":      d.Lookahead,
			"position_error": d.PositionError,
			"velocity_error": d.VelocityError,
		},
		at)
}

// IngestPoint records one ingested packet.
func IngestPoint(mode string, frame uint64, cars int, ballSpeed float64, at time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPoint("packet",
		map[string]string{"mode": mode},
		map[string]interface{}{
			"frame":      int64(frame),
			"cars":       cars,
			"ball_speed": ballSpeed,
		},
		at)
}
