package flush

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		want   Outcome
	}{
		{200, OutcomeSuccess},
		{201, OutcomeSuccess},
		{204, OutcomeSuccess},
		{304, OutcomeSuccess},
		{400, OutcomeRejected},
		{401, OutcomeRejected},
		{404, OutcomeRejected},
		{409, OutcomeRejected},
		{422, OutcomeRejected},
		{408, OutcomeTransient},
		{429, OutcomeTransient},
		{500, OutcomeTransient},
		{502, OutcomeTransient},
		{503, OutcomeTransient},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.status), "status %d", tt.status)
	}
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "rejected", OutcomeRejected.String())
	assert.Equal(t, "transient", OutcomeTransient.String())
	assert.Equal(t, "unknown", Outcome(0).String())
}
