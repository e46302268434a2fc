package lifecycle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/skyroll/internal/models"
	"github.com/desertthunder/skyroll/internal/shared"
)

// EncodeState builds the OAuth state parameter for ref: "type:index".
func EncodeState(ref models.InstanceRef) string {
	return ref.String()
}

// DecodeState parses an OAuth state parameter produced by [EncodeState].
func DecodeState(state string) (models.InstanceRef, error) {
	idx := strings.LastIndex(state, ":")
	if idx <= 0 || idx == len(state)-1 {
		return models.InstanceRef{}, fmt.Errorf("%w: %q", shared.ErrInvalidState, state)
	}

	index, err := strconv.Atoi(state[idx+1:])
	if err != nil || index < 0 {
		return models.InstanceRef{}, fmt.Errorf("%w: %q", shared.ErrInvalidState, state)
	}

	return models.InstanceRef{ProviderType: state[:idx], InstanceIndex: index}, nil
}
