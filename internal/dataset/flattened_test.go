package dataset

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func threeByTwo(t *testing.T, scaling string) *FlattenedDataset {
	t.Helper()
	matrix := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	data, err := New(matrix, []string{"A[C>T]G", "T[T>G]A"}, []string{"lung", "skin", "lung"}, scaling)
	if err != nil {
		t.Fatalf("new dataset: %v", err)
	}
	return data
}

func TestScalingValueModes(t *testing.T) {
	row := []float64{1, 2, 3, 4}
	cases := []struct {
		mode string
		want float64
	}{
		{ScalingSum, 10},
		{ScalingMean, 2.5},
		{ScalingMax, 4},
	}
	for _, c := range cases {
		got, err := ScalingValue(row, c.mode)
		if err != nil {
			t.Fatalf("scaling %s: %v", c.mode, err)
		}
		if got != c.want {
			t.Fatalf("scaling %s: got=%f want=%f", c.mode, got, c.want)
		}
	}
	if _, err := ScalingValue(row, "median"); !errors.Is(err, ErrScalingType) {
		t.Fatalf("expected ErrScalingType, got: %v", err)
	}
}

func TestNewRejectsUnsupportedScaling(t *testing.T) {
	matrix := mat.NewDense(1, 1, []float64{1})
	if _, err := New(matrix, []string{"x"}, nil, "median"); !errors.Is(err, ErrScalingType) {
		t.Fatalf("expected ErrScalingType, got: %v", err)
	}
}

func TestEndToEndThreeSamplesTwoContexts(t *testing.T) {
	data := threeByTwo(t, "mean")

	want := []float64{1.5, 3.5, 5.5}
	for s, w := range want {
		if got := data.Scale(s); got != w {
			t.Fatalf("scale[%d]: got=%f want=%f", s, got, w)
		}
	}
	if data.Len() != 6 {
		t.Fatalf("expected 6 pairs, got %d", data.Len())
	}

	s, c, err := data.Decode(0)
	if err != nil || s != 0 || c != 0 {
		t.Fatalf("decode 0: got (%d,%d) err=%v", s, c, err)
	}
	s, c, err = data.Decode(5)
	if err != nil || s != 2 || c != 1 {
		t.Fatalf("decode 5: got (%d,%d) err=%v", s, c, err)
	}

	item, err := data.Get(3)
	if err != nil {
		t.Fatalf("get 3: %v", err)
	}
	if item.Sample != 1 || item.Context != 1 || item.Value != 4 || item.Scale != 3.5 {
		t.Fatalf("unexpected item: %+v", item)
	}
	if len(item.OneHot) != OneHotDim {
		t.Fatalf("unexpected onehot length %d", len(item.OneHot))
	}
}

func TestFlattenedIndexEnumeratesEveryPairOnce(t *testing.T) {
	for _, shape := range [][2]int{{1, 1}, {4, 3}, {2, 7}} {
		n, m := shape[0], shape[1]
		contexts := make([]string, m)
		for i := range contexts {
			contexts[i] = string(rune('a' + i))
		}
		data, err := New(mat.NewDense(n, m, nil), contexts, nil, ScalingSum)
		if err != nil {
			t.Fatalf("new dataset: %v", err)
		}
		if data.Len() != n*m {
			t.Fatalf("len: got=%d want=%d", data.Len(), n*m)
		}
		seen := make(map[[2]int]bool, n*m)
		for i := 0; i < data.Len(); i++ {
			s, c, err := data.Decode(i)
			if err != nil {
				t.Fatalf("decode %d: %v", i, err)
			}
			if seen[[2]int{s, c}] {
				t.Fatalf("pair (%d,%d) enumerated twice", s, c)
			}
			seen[[2]int{s, c}] = true
			back, err := data.Encode(s, c)
			if err != nil {
				t.Fatalf("encode (%d,%d): %v", s, c, err)
			}
			if back != i {
				t.Fatalf("round trip: %d -> (%d,%d) -> %d", i, s, c, back)
			}
		}
		if len(seen) != n*m {
			t.Fatalf("expected %d distinct pairs, got %d", n*m, len(seen))
		}
	}
}

func TestDecodeOutOfRange(t *testing.T) {
	data := threeByTwo(t, "sum")
	for _, i := range []int{-1, 6} {
		if _, _, err := data.Decode(i); !errors.Is(err, ErrPairIndex) {
			t.Fatalf("index %d: expected ErrPairIndex, got %v", i, err)
		}
	}
	if _, err := data.Encode(3, 0); !errors.Is(err, ErrPairIndex) {
		t.Fatalf("expected ErrPairIndex, got %v", err)
	}
}

func TestContextOneHotKnownTransition(t *testing.T) {
	got := ContextOneHot("A[C>T]G")
	want := make([]float64, OneHotDim)
	want[1] = 1   // ref C
	want[4+3] = 1 // alt T
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("onehot mismatch at %d: got=%+v want=%+v", i, got, want)
		}
	}

	lower := ContextOneHot("a[g>a]t")
	if lower[2] != 1 || lower[4] != 1 || lower[unknownBit] != 0 {
		t.Fatalf("expected case-insensitive parse, got %+v", lower)
	}
}

func TestContextOneHotUnknownDoesNotFail(t *testing.T) {
	for _, name := range []string{"SBS1", "A[C-T]G", "[N>T]", ""} {
		got := ContextOneHot(name)
		if len(got) != OneHotDim {
			t.Fatalf("%q: unexpected length %d", name, len(got))
		}
		for i, v := range got {
			want := 0.0
			if i == unknownBit {
				want = 1
			}
			if v != want {
				t.Fatalf("%q: expected unknown marker, got %+v", name, got)
			}
		}
	}
}

func TestOneHotCacheHasOneEntryPerDistinctName(t *testing.T) {
	matrix := mat.NewDense(1, 3, []float64{1, 2, 3})
	data, err := New(matrix, []string{"A[C>T]G", "SBS1", "A[C>T]G"}, nil, ScalingMax)
	if err != nil {
		t.Fatalf("new dataset: %v", err)
	}
	if data.DistinctContexts() != 2 {
		t.Fatalf("expected 2 cached encodings, got %d", data.DistinctContexts())
	}
	if &data.OneHot(0)[0] != &data.OneHot(2)[0] {
		t.Fatal("contexts sharing a name must share the cached encoding")
	}
}
