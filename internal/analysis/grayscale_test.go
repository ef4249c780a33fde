package analysis

import "testing"

func TestBGRToGrayscaleEqualChannelsRoundTrips(t *testing.T) {
	// When all channels are equal, the weighted
	// sum must reproduce that value (weights sum to 1).
	buf := []byte{200, 200, 200, 7, 7, 7, 0, 0, 0}
	out := bgrToGrayscale(buf, 3, 3)
	for i, want := range []float64{200, 7, 0} {
		if diff := out[i] - want; diff > 1 || diff < -1 {
			t.Fatalf("pixel %d: got %v, want ~%v", i, out[i], want)
		}
	}
}

func TestBGRToGrayscaleRedChannelWeight(t *testing.T) {
	buf := []byte{0, 0, 255} // pure red (BGR order: B=0,G=0,R=255)
	out := bgrToGrayscale(buf, 1, 3)
	want := 0.299 * 255
	if diff := out[0] - want; diff > 0.01 || diff < -0.01 {
		t.Fatalf("got %v, want %v", out[0], want)
	}
}
