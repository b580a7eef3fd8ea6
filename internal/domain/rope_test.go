package domain

import (
	"reflect"
	"testing"
)

func TestRopePositionFor(t *testing.T) {
	const threshold = 0.3

	tests := []struct {
		name      string
		leftMean  float64
		rightMean float64
		expected  RopePosition
	}{
		{name: "Midpoint right of threshold", leftMean: -1, rightMean: 2, expected: RopeRight},
		{name: "Midpoint left of threshold", leftMean: -2, rightMean: 1, expected: RopeLeft},
		{name: "Midpoint inside band", leftMean: -1, rightMean: 1, expected: RopeCenter},
		{name: "Exactly at positive threshold", leftMean: 0, rightMean: 0.6, expected: RopeCenter},
		{name: "Exactly at negative threshold", leftMean: -0.6, rightMean: 0, expected: RopeCenter},
		{name: "Just beyond positive threshold", leftMean: 0, rightMean: 0.601, expected: RopeRight},
		{name: "Just beyond negative threshold", leftMean: -0.601, rightMean: 0, expected: RopeLeft},
		{name: "Symmetric pull stays centered", leftMean: -4, rightMean: 4, expected: RopeCenter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RopePositionFor(tt.leftMean, tt.rightMean, threshold)
			if got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestRopeFromPlayers(t *testing.T) {
	players := []Player{
		{ID: "a", Lane: -6},
		{ID: "b", Lane: -4},
		{ID: "c", Lane: 2},
		{ID: "d", Lane: 3},
	}
	// left mean -5, right mean 2.5, midpoint -1.25
	if got := RopeFromPlayers(players, 0.3); got != RopeLeft {
		t.Errorf("expected left, got %v", got)
	}

	// Eliminated players do not contribute to the means.
	players[0].IsEliminated = true
	players[1].IsEliminated = true
	if got := RopeFromPlayers(players, 0.3); got != RopeCenter {
		t.Errorf("expected center with an empty side, got %v", got)
	}
}

func TestPitWinners(t *testing.T) {
	tests := []struct {
		name     string
		players  []Player
		expected []string
	}{
		{
			name: "Left side fully in pit",
			players: []Player{
				{ID: "l1", Lane: -0.5},
				{ID: "l2", Lane: -0.9},
				{ID: "r1", Lane: 4},
			},
			expected: []string{"r1"},
		},
		{
			name: "One member outside pit blocks the win",
			players: []Player{
				{ID: "l1", Lane: -0.5},
				{ID: "l2", Lane: -1.1},
				{ID: "r1", Lane: 4},
			},
			expected: nil,
		},
		{
			name: "Member exactly at threshold counts as in pit",
			players: []Player{
				{ID: "l1", Lane: -1.0},
				{ID: "r1", Lane: 4},
			},
			expected: []string{"r1"},
		},
		{
			name: "Eliminated member outside pit is ignored",
			players: []Player{
				{ID: "l1", Lane: -0.5},
				{ID: "l2", Lane: -7, IsEliminated: true},
				{ID: "r1", Lane: 4},
			},
			expected: []string{"r1"},
		},
		{
			name: "Right side dragged in",
			players: []Player{
				{ID: "l1", Lane: -5},
				{ID: "r1", Lane: 0.2},
				{ID: "r2", Lane: 0.8},
			},
			expected: []string{"l1"},
		},
		{
			name:     "No opposing side",
			players:  []Player{{ID: "r1", Lane: 0.2}},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PitWinners(tt.players, 1.0)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestTimeoutWinners(t *testing.T) {
	left := []Player{{ID: "l1", Lane: -4}, {ID: "l2", Lane: -6}}
	right := []Player{{ID: "r1", Lane: 3}, {ID: "r2", Lane: 5}}
	all := append(append([]Player{}, left...), right...)

	tests := []struct {
		name     string
		players  []Player
		rope     RopePosition
		expected []string
	}{
		{name: "Rope left", players: all, rope: RopeLeft, expected: []string{"l1", "l2"}},
		{name: "Rope right", players: all, rope: RopeRight, expected: []string{"r1", "r2"}},
		{
			// left mean distance 5 vs right 4: left more displaced.
			name:     "Centered rope breaks tie by displacement",
			players:  all,
			rope:     RopeCenter,
			expected: []string{"l1", "l2"},
		},
		{
			name: "True tie has no winners",
			players: []Player{
				{ID: "l1", Lane: -4},
				{ID: "r1", Lane: 4},
			},
			rope:     RopeCenter,
			expected: nil,
		},
		{
			name:     "Lone side wins by default",
			players:  left,
			rope:     RopeCenter,
			expected: []string{"l1", "l2"},
		},
		{name: "Empty room", players: nil, rope: RopeCenter, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TimeoutWinners(tt.players, tt.rope)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestFinishWinners(t *testing.T) {
	players := []Player{
		{ID: "a", Z: 25},
		{ID: "b", Z: 24.9},
		{ID: "c", Z: 30, IsEliminated: true},
		{ID: "d", Z: 26},
	}
	got := FinishWinners(players, 25)
	expected := []string{"a", "d"}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
}
