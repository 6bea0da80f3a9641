package codec

import "testing"

func TestSeenRoundTrip(t *testing.T) {
	cases := []struct {
		id string
		ts int64
	}{
		{"a1", 1700000000},
		{"id,with,commas", 42},
		{"percent%here", 1},
		{"multi\nline", 9},
	}
	for _, tc := range cases {
		line := EncodeSeen(tc.id, tc.ts)
		id, ts, err := DecodeSeen(line)
		if err != nil {
			t.Fatalf("DecodeSeen(%q) error: %v", line, err)
		}
		if id != tc.id || ts != tc.ts {
			t.Errorf("round trip = (%q, %d), want (%q, %d)", id, ts, tc.id, tc.ts)
		}
	}
}

func TestSeenLegacyCommaID(t *testing.T) {
	// Lines written before escaping existed split on the last comma.
	id, ts, err := DecodeSeen("raw,legacy,id,1700000001")
	if err != nil {
		t.Fatalf("DecodeSeen error: %v", err)
	}
	if id != "raw,legacy,id" {
		t.Errorf("id = %q, want raw,legacy,id", id)
	}
	if ts != 1700000001 {
		t.Errorf("ts = %d, want 1700000001", ts)
	}
}

func TestHeadlineRoundTrip(t *testing.T) {
	cases := []string{
		"Fed raises interest rates",
		"headline, with commas",
		"pipes | here || and ||| even the delimiter",
		"percent%25 trap",
	}
	for _, text := range cases {
		line := EncodeHeadline(text, 1700000000)
		got, ts, err := DecodeHeadline(line)
		if err != nil {
			t.Fatalf("DecodeHeadline(%q) error: %v", line, err)
		}
		if got != text {
			t.Errorf("text = %q, want %q", got, text)
		}
		if ts != 1700000000 {
			t.Errorf("ts = %d, want 1700000000", ts)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, _, err := DecodeSeen("no-delimiter"); err == nil {
		t.Error("DecodeSeen should fail without a delimiter")
	}
	if _, _, err := DecodeSeen("id,notanumber"); err == nil {
		t.Error("DecodeSeen should fail on a bad timestamp")
	}
	if _, _, err := DecodeHeadline("plain text"); err == nil {
		t.Error("DecodeHeadline should fail without a delimiter")
	}
}

func TestIsComment(t *testing.T) {
	if !IsComment("") || !IsComment(Header) || !IsComment("# note") {
		t.Error("blank and # lines are comments")
	}
	if IsComment("a1,1") {
		t.Error("record lines are not comments")
	}
}
