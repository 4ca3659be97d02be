package source

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Modes accepted by New.
const (
	ModeLive = "live"
	ModeMock = "mock"
)

// New selects the live or mock implementation.
func New(mode string, serialCfg SerialConfig, mockInterval time.Duration, logger *zap.Logger) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeLive:
		return NewSerialSource(serialCfg, nil, logger), nil
	case ModeMock, "":
		return NewMockSource(serialCfg.Station, mockInterval, nil), nil
	default:
		return nil, fmt.Errorf("source: unknown mode %q", mode)
	}
}
