package parser

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/rlpredict/rlpredict/internal/util"
	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/simulation"
)

// Parser provides pure []string -> record conversion.
// It has zero external dependencies beyond a logger.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new parser with only a logger dependency.
// A nil logger uses slog.Default.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// payload returns the single JSON argument of a command, unquoted.
func payload(data []string, what string) ([]byte, error) {
	if len(data) != 1 {
		return nil, fmt.Errorf("%w: %s expects 1 argument, got %d", simulation.ErrIngestion, what, len(data))
	}
	return []byte(util.UnwrapArg(data[0])), nil
}

// ParseMode parses the arena mode sent by :MODE:.
func (p *Parser) ParseMode(data []string) (simulation.Mode, error) {
	if len(data) != 1 {
		return "", fmt.Errorf("%w: mode expects 1 argument, got %d", simulation.ErrConfiguration, len(data))
	}
	return simulation.ParseMode(util.UnwrapArg(data[0]))
}

// ParseFieldInfo parses the static goal and boost pad layout.
// Semantic checks (counts, finiteness) are left to the field.
func (p *Parser) ParseFieldInfo(data []string) (core.FieldInfo, error) {
	var info core.FieldInfo

	raw, err := payload(data, "field info")
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return info, fmt.Errorf("%w: error unmarshalling field info: %v", simulation.ErrIngestion, err)
	}

	p.logger.Debug("Parsed field info",
		"goals", info.NumGoals,
		"boostPads", info.NumBoosts)

	return info, nil
}

// ParsePacket parses one game tick packet.
// Semantic checks (counts, finiteness, shapes) are left to the game.
func (p *Parser) ParsePacket(data []string) (core.GameTickPacket, error) {
	var pkt core.GameTickPacket

	raw, err := payload(data, "packet")
	if err != nil {
		return pkt, err
	}
	if err := json.Unmarshal(raw, &pkt); err != nil {
		return pkt, fmt.Errorf("%w: error unmarshalling packet: %v", simulation.ErrIngestion, err)
	}

	return pkt, nil
}

// ParseHorizon parses the optional look-ahead of :PREDICT: in seconds.
// Zero means the configured default.
func (p *Parser) ParseHorizon(data []string) (float64, error) {
	if len(data) == 0 || util.UnwrapArg(data[0]) == "" {
		return 0, nil
	}
	h, err := util.ParseFloatArg(data[0])
	if err != nil {
		return 0, fmt.Errorf("error parsing horizon: %w", err)
	}
	if h < 0 || math.IsNaN(h) || math.IsInf(h, 0) {
		return 0, fmt.Errorf("error parsing horizon: %v is not a valid duration", h)
	}
	return h, nil
}

// ParseCommand decodes one line of the stdin line protocol.
func (p *Parser) ParseCommand(line []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		return cmd, fmt.Errorf("error unmarshalling command: %w", err)
	}
	if cmd.Command == "" {
		return cmd, fmt.Errorf("command line has no command")
	}
	return cmd, nil
}

// ParseBallOverrides parses :PREDICT:BATCH: arguments: a JSON array of
// overrides and an optional horizon in seconds.
func (p *Parser) ParseBallOverrides(data []string) ([]BallOverride, float64, error) {
	if len(data) == 0 || len(data) > 2 {
		return nil, 0, fmt.Errorf("%w: batch expects 1 or 2 arguments, got %d", simulation.ErrIngestion, len(data))
	}

	var overrides []BallOverride
	if err := json.Unmarshal([]byte(util.UnwrapArg(data[0])), &overrides); err != nil {
		return nil, 0, fmt.Errorf("%w: error unmarshalling ball overrides: %v", simulation.ErrIngestion, err)
	}

	horizon, err := p.ParseHorizon(data[1:])
	if err != nil {
		return nil, 0, err
	}
	return overrides, horizon, nil
}
