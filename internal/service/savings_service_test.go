package service

import (
	"testing"

	"savequest/internal/models"
)

func TestSumAmounts(t *testing.T) {
	tests := []struct {
		name     string
		entries  []models.SavingsEntry
		expected float64
	}{
		{
			name:     "no entries",
			entries:  []models.SavingsEntry{},
			expected: 0,
		},
		{
			name: "single entry",
			entries: []models.SavingsEntry{
				{AmountSaved: 5.50},
			},
			expected: 5.50,
		},
		{
			name: "multiple entries",
			entries: []models.SavingsEntry{
				{AmountSaved: 5},
				{AmountSaved: 2.25},
				{AmountSaved: 10},
			},
			expected: 17.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sumAmounts(tt.entries); got != tt.expected {
				t.Errorf("sumAmounts() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestComputeProgress(t *testing.T) {
	tests := []struct {
		name         string
		totalSaved   float64
		moneyGoal    float64
		wantFraction float64
	}{
		{
			name:         "halfway",
			totalSaved:   50,
			moneyGoal:    100,
			wantFraction: 0.5,
		},
		{
			name:         "over goal clamps to one",
			totalSaved:   150,
			moneyGoal:    100,
			wantFraction: 1,
		},
		{
			name:         "nothing saved",
			totalSaved:   0,
			moneyGoal:    100,
			wantFraction: 0,
		},
		{
			name:         "zero goal yields zero fraction",
			totalSaved:   50,
			moneyGoal:    0,
			wantFraction: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeProgress(tt.totalSaved, tt.moneyGoal)
			if got.Fraction != tt.wantFraction {
				t.Errorf("computeProgress().Fraction = %v, want %v", got.Fraction, tt.wantFraction)
			}
			if got.TotalSaved != tt.totalSaved {
				t.Errorf("computeProgress().TotalSaved = %v, want %v", got.TotalSaved, tt.totalSaved)
			}
		})
	}
}
