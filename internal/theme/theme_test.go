package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/taskboard/internal/model"
)

func TestColumnColorCycles(t *testing.T) {
	assert.Equal(t, ColumnColor(0), ColumnColor(len(columnPalette)))
	assert.NotEqual(t, ColumnColor(0), ColumnColor(1))
	assert.Equal(t, ColumnColor(0), ColumnColor(-3))
}

func TestLabelColorOffsetFromColumns(t *testing.T) {
	// A board's first label must not match its first column.
	assert.NotEqual(t, ColumnColor(0), LabelColor(0))
	assert.Equal(t, LabelColor(1), LabelColor(1+len(labelPalette)))
}

func TestPriorityColor(t *testing.T) {
	tests := []struct {
		priority model.Priority
		want     string
	}{
		{model.PriorityCritical, ColorRed},
		{model.PriorityHigh, ColorOrange},
		{model.PriorityMedium, ColorYellow},
		{model.PriorityLow, ColorBlue},
		{model.Priority(""), ColorGray},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PriorityColor(tt.priority))
	}
}
