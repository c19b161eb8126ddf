package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasAny(t *testing.T) {
	assert.True(t, HasAny("text/csv; charset=utf-8", "text/csv", "application/csv"))
	assert.False(t, HasAny("application/json", "text/csv"))
	assert.False(t, HasAny("anything"))
}

func TestHasAnySuffix(t *testing.T) {
	assert.True(t, HasAnySuffix("Readings.CSV", ".csv"))
	assert.False(t, HasAnySuffix("readings.xlsx", ".csv", ".txt"))
}
