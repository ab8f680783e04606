package core

import (
	"reflect"
	"testing"
)

func TestCleanOrderings(t *testing.T) {
	tests := []struct {
		name      string
		orderings []DBOrdering
		allowed   []string
		want      []DBOrdering
	}{
		{name: "nil", want: nil},
		{
			name:      "drops unknown fields",
			orderings: []DBOrdering{{Field: "name", Ascending: true}, {Field: "1; DROP TABLE user"}},
			allowed:   []string{"name", "created_at"},
			want:      []DBOrdering{{Field: "name", Ascending: true}},
		},
		{
			name:      "normalizes case",
			orderings: []DBOrdering{{Field: "Created_At"}},
			allowed:   []string{"created_at"},
			want:      []DBOrdering{{Field: "created_at"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanOrderings(tt.orderings, tt.allowed...); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CleanOrderings() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want string
	}{
		{s: "short", n: 10, want: "short"},
		{s: "What is photosynthesis", n: 8, want: "What is…"},
		{s: "héllo wörld", n: 6, want: "héllo…"},
		{s: "anything", n: 0, want: "anything"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.s, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
		}
	}
}
