package scoring

import "testing"

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want int
	}{
		{
			name: "no votes",
			in:   Input{},
			want: 0,
		},
		{
			name: "sums weights including downvotes",
			in:   Input{Weights: []int{1, 3, -1}},
			want: 3,
		},
		{
			// raw 5, shares "survival" with previous game, penalty 2
			name: "penalty applied on shared tag",
			in: Input{
				Weights:          []int{2, 3},
				Tags:             []string{"Survival", "Co-op"},
				PreviousGameTags: []string{"survival"},
				HasPreviousGame:  true,
				Penalty:          2,
			},
			want: 3,
		},
		{
			name: "no shared tag",
			in: Input{
				Weights:          []int{5},
				Tags:             []string{"RTS"},
				PreviousGameTags: []string{"FPS"},
				HasPreviousGame:  true,
				Penalty:          2,
			},
			want: 5,
		},
		{
			name: "zero penalty",
			in: Input{
				Weights:          []int{5},
				Tags:             []string{"RTS"},
				PreviousGameTags: []string{"RTS"},
				HasPreviousGame:  true,
			},
			want: 5,
		},
		{
			name: "no previous game",
			in: Input{
				Weights: []int{5},
				Tags:    []string{"RTS"},
				Penalty: 2,
			},
			want: 5,
		},
		{
			name: "penalty may go negative",
			in: Input{
				Weights:          []int{1},
				Tags:             []string{"MOBA"},
				PreviousGameTags: []string{" moba "},
				HasPreviousGame:  true,
				Penalty:          4,
			},
			want: -3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.in); got != tt.want {
				t.Errorf("Score() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScore_Deterministic(t *testing.T) {
	in := Input{
		Weights:          []int{3, 1, -1, 2},
		Tags:             []string{"a", "b"},
		PreviousGameTags: []string{"b"},
		HasPreviousGame:  true,
		Penalty:          2,
	}
	first := Score(in)
	for i := 0; i < 10; i++ {
		if got := Score(in); got != first {
			t.Fatalf("Score changed between calls: %d vs %d", got, first)
		}
	}
}

func TestSharesTag(t *testing.T) {
	if SharesTag(nil, []string{"a"}) {
		t.Error("empty set shares nothing")
	}
	if !SharesTag([]string{"Grand Strategy"}, []string{"grand strategy"}) {
		t.Error("expected case-insensitive match")
	}
	if SharesTag([]string{"RTS"}, []string{"RPG"}) {
		t.Error("unexpected match")
	}
}

func TestBonusSpend(t *testing.T) {
	tests := []struct {
		weights []int
		want    int
	}{
		{nil, 0},
		{[]int{1, 1, 1}, 0},
		{[]int{3}, 2},
		{[]int{2, 2, -1}, 2},
	}
	for _, tt := range tests {
		if got := BonusSpend(tt.weights); got != tt.want {
			t.Errorf("BonusSpend(%v) = %d, want %d", tt.weights, got, tt.want)
		}
	}
}
