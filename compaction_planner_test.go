package reftable

import "testing"

func TestSuggestCompactionSegment(t *testing.T) {
	start, end := suggestCompactionSegment([]uint64{512, 64, 17, 16, 9, 9, 9, 16, 2, 16}, 2)
	if start != 1 || end != 10 {
		t.Fatalf("got {%d,%d}, want {1,10}", start, end)
	}
}

func TestSuggestCompactionSegmentDeclines(t *testing.T) {
	start, end := suggestCompactionSegment([]uint64{64, 32, 16, 8, 4, 2}, 2)
	if start != end {
		t.Fatalf("got {%d,%d}, want start==end (decline)", start, end)
	}
}

func TestSuggestCompactionSegmentEmpty(t *testing.T) {
	start, end := suggestCompactionSegment(nil, 2)
	if start != 0 || end != 0 {
		t.Fatalf("got {%d,%d}, want {0,0}", start, end)
	}
}

func TestSuggestCompactionSegmentAllEqual(t *testing.T) {
	// every table the same size: nothing ever towers over the running
	// sum enough to seal a suffix of length < all of them, so the
	// whole run should seal as one segment.
	start, end := suggestCompactionSegment([]uint64{8, 8, 8, 8}, 2)
	if start != 0 || end != 4 {
		t.Fatalf("got {%d,%d}, want {0,4}", start, end)
	}
}
