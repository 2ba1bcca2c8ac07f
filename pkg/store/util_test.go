package store

import (
	"fmt"
	"testing"
)

func TestChunkRange(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		chunkSize int
		want      [][2]int
	}{
		{name: "empty", total: 0, chunkSize: 10, want: nil},
		{name: "single partial chunk", total: 3, chunkSize: 10, want: [][2]int{{0, 3}}},
		{name: "exact multiple", total: 6, chunkSize: 3, want: [][2]int{{0, 3}, {3, 6}}},
		{name: "trailing remainder", total: 7, chunkSize: 3, want: [][2]int{{0, 3}, {3, 6}, {6, 7}}},
		{name: "zero chunk size covers all", total: 5, chunkSize: 0, want: [][2]int{{0, 5}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got [][2]int
			err := ChunkRange(tc.total, tc.chunkSize, func(start, end int) error {
				got = append(got, [2]int{start, end})
				return nil
			})
			if err != nil {
				t.Fatalf("ChunkRange() error = %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("chunks = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("chunk %d = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestChunkRange_StopsOnError(t *testing.T) {
	calls := 0
	err := ChunkRange(10, 3, func(start, end int) error {
		calls++
		if start >= 3 {
			return fmt.Errorf("chunk starting at %d", start)
		}
		return nil
	})
	if err == nil {
		t.Fatalf("expected the chunk error to propagate")
	}
	if calls != 2 {
		t.Fatalf("fn called %d times, want 2 (stop at first failure)", calls)
	}
}
