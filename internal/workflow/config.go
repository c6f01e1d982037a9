package workflow

import (
	"fmt"

	"github.com/hochfrequenz/pretested-integration/internal/behaviour"
	"github.com/hochfrequenz/pretested-integration/internal/bridge"
	"github.com/hochfrequenz/pretested-integration/internal/config"
	"github.com/hochfrequenz/pretested-integration/internal/domain"
	"github.com/hochfrequenz/pretested-integration/internal/strategy"
)

// BridgeConfig resolves the tags of an [integration] config section
func BridgeConfig(ic config.IntegrationConfig) (bridge.Config, error) {
	s, err := strategy.New(ic.Strategy)
	if err != nil {
		return bridge.Config{}, fmt.Errorf("%w: %w", bridge.ErrConfig, err)
	}
	behaviours, err := behaviour.NewAll(ic.Behaviours)
	if err != nil {
		return bridge.Config{}, fmt.Errorf("%w: %w", bridge.ErrConfig, err)
	}
	required := domain.ResultSuccess
	if ic.RequiredResult != "" {
		required, err = domain.ParseResult(ic.RequiredResult)
		if err != nil {
			return bridge.Config{}, fmt.Errorf("%w: %w", bridge.ErrConfig, err)
		}
	}
	return bridge.Config{
		Branch:         ic.Branch,
		Remote:         ic.Remote,
		Strategy:       s,
		Behaviours:     behaviours,
		RequiredResult: required,
	}, nil
}
