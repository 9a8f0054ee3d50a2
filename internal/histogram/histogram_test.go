package histogram

import "testing"

func TestUpdateTracksMinMaxSum(t *testing.T) {
	d := New(Bounds(0, 4))
	for _, v := range []int64{1, 3, 30, 2} {
		d.Update(v)
	}
	if d.Min != 1 {
		t.Fatalf("expected min 1, got %d", d.Min)
	}
	if d.Max != 30 {
		t.Fatalf("expected max 30, got %d", d.Max)
	}
	if d.Sum != 36 {
		t.Fatalf("expected sum 36, got %d", d.Sum)
	}
	if d.Count != 4 {
		t.Fatalf("expected count 4, got %d", d.Count)
	}
}

func TestCopyIsIndependent(t *testing.T) {
	d := New(Bounds(0, 4))
	d.Update(1)
	snap := d.Copy()
	d.Update(100)
	if snap.Count != 1 {
		t.Fatalf("copy should not observe later updates, got count %d", snap.Count)
	}
}
