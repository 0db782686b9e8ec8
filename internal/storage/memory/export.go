package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/linalg"
	"github.com/rlpredict/rlpredict/pkg/simulation"
)

// SessionExport is the root JSON structure
type SessionExport struct {
	Mode        string           `json:"mode"`
	StartTime   time.Time        `json:"startTime"`
	EndTime     time.Time        `json:"endTime"`
	EndFrame    uint64           `json:"endFrame"`
	Goals       [][]any          `json:"goals"`
	BoostPads   [][]any          `json:"boostPads"`
	Frames      []FrameJSON      `json:"frames"`
	Predictions []PredictionJSON `json:"predictions"`
	Drift       [][]any          `json:"drift"`
}

// FrameJSON is one packet's ball and cars
type FrameJSON struct {
	Frame uint64  `json:"frame"`
	Time  float64 `json:"time"`
	// [x, y, z, vx, vy, vz, wx, wy, wz]
	Ball []float64 `json:"ball"`
	// [slot, spawnId, team, x, y, z, pitch, yaw, roll, boost, state]
	Cars [][]any `json:"cars"`
}

// PredictionJSON is a trajectory reduced to positions
type PredictionJSON struct {
	Frame     uint64      `json:"frame"`
	StartTime float64     `json:"startTime"`
	Dt        float64     `json:"dt"`
	Positions [][]float64 `json:"positions"`
	GoalTeam  *int        `json:"goalTeam,omitempty"`
	GoalTime  *float64    `json:"goalTime,omitempty"`
}

func vec(v linalg.Vec3) []float64 {
	return []float64{v.X, v.Y, v.Z}
}

func carStateName(c core.CarState) string {
	return simulation.Car{
		Demolished:   c.Demolished,
		OnGround:     c.OnGround,
		Jumped:       c.Jumped,
		DoubleJumped: c.DoubleJumped,
		Dodged:       c.Dodged,
	}.State().String()
}

// exportJSON writes the session data to a (optionally gzipped) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	timestamp := b.session.StartTime.Format("20060102_150405")
	filename := fmt.Sprintf("%s_%s_%d.json", b.session.Mode, timestamp, b.session.ID)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := writeExport(outputPath, export, b.cfg.CompressOutput); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	b.lastExportMeta = core.ExportMetadata{
		Mode:        b.session.Mode,
		StartTime:   b.session.StartTime,
		Frames:      uint64(len(b.frames)),
		Predictions: len(b.predictions),
		Path:        outputPath,
	}
	return nil
}

func (b *Backend) buildExport() SessionExport {
	export := SessionExport{
		Mode:        b.session.Mode,
		StartTime:   b.session.StartTime,
		EndTime:     b.session.EndTime,
		Goals:       make([][]any, 0),
		BoostPads:   make([][]any, 0),
		Frames:      make([]FrameJSON, 0, len(b.frames)),
		Predictions: make([]PredictionJSON, 0, len(b.predictions)),
		Drift:       make([][]any, 0, len(b.drift)),
	}

	// Format: [team, [x, y, z], [dx, dy, dz], width, height]
	if b.fieldInfo != nil {
		info := b.fieldInfo
		for _, g := range info.Goals[:min(info.NumGoals, len(info.Goals))] {
			export.Goals = append(export.Goals, []any{g.TeamNum, vec(g.Location), vec(g.Direction), g.Width, g.Height})
		}
		// Format: [[x, y, z], isFull]
		for _, p := range info.BoostPads[:min(info.NumBoosts, len(info.BoostPads))] {
			export.BoostPads = append(export.BoostPads, []any{vec(p.Location), p.IsFullBoost})
		}
	}

	for _, f := range b.frames {
		fj := FrameJSON{
			Frame: f.Frame,
			Time:  f.Ball.Time,
			Ball:  append(append(vec(f.Ball.Position), vec(f.Ball.Velocity)...), vec(f.Ball.AngularVelocity)...),
			Cars:  make([][]any, 0, len(f.Cars)),
		}
		for _, c := range f.Cars {
			fj.Cars = append(fj.Cars, []any{
				c.Slot, c.SpawnID, c.Team,
				c.Position.X, c.Position.Y, c.Position.Z,
				c.Rotation.Pitch, c.Rotation.Yaw, c.Rotation.Roll,
				c.Boost, carStateName(c),
			})
		}
		export.Frames = append(export.Frames, fj)
		if f.Frame > export.EndFrame {
			export.EndFrame = f.Frame
		}
	}

	for _, p := range b.predictions {
		pj := PredictionJSON{
			Frame:     p.Frame,
			StartTime: p.StartTime,
			Dt:        p.Dt,
			Positions: make([][]float64, 0, len(p.Samples)),
		}
		for _, s := range p.Samples {
			pj.Positions = append(pj.Positions, vec(s.Position))
		}
		if p.Goal != nil {
			team, at := p.Goal.Team, p.Goal.Time
			pj.GoalTeam, pj.GoalTime = &team, &at
		}
		export.Predictions = append(export.Predictions, pj)
	}

	// Format: [frame, predictionFrame, lookahead, positionError, velocityError]
	for _, d := range b.drift {
		export.Drift = append(export.Drift, []any{d.Frame, d.PredictionFrame, d.Lookahead, d.PositionError, d.VelocityError})
	}

	return export
}

func writeExport(path string, data SessionExport, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	if compress {
		gzWriter := gzip.NewWriter(f)
		defer gzWriter.Close()
		w = gzWriter
	}

	return json.NewEncoder(w).Encode(data)
}
