package httpapi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuvusIT/entman/internal/entman/types"
)

func TestHistoryToProto_TimeKeepsFullRange(t *testing.T) {
	list, err := historyToProto([]types.HistoryEntry{
		{Time: math.MaxUint64, Token: "late", Response: types.AccessResponse{Outcome: types.Success}},
		{Time: 1<<53 + 1, Token: "odd", Response: types.AccessResponse{Outcome: types.Failure}},
	})
	require.NoError(t, err)
	require.Len(t, list.Values, 2)

	assert.Equal(t, "18446744073709551615", list.Values[0].GetStructValue().Fields["time"].GetStringValue())
	assert.Equal(t, "9007199254740993", list.Values[1].GetStructValue().Fields["time"].GetStringValue())
}
