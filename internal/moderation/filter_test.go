package moderation

import "testing"

func TestCheck_Clean(t *testing.T) {
	f := NewFilter(nil)

	clean := []string{
		"hey, how are you?",
		"meeting at 3pm works for me",
		"the new release is v2.0",
		"pi is roughly 3.14",
		"good good", // below word flood threshold
	}
	for _, text := range clean {
		if res := f.Check(text); res.Flagged {
			t.Errorf("expected %q to pass, flagged for %s", text, res.Reason)
		}
	}
}

func TestCheck_URLs(t *testing.T) {
	f := NewFilter(nil)

	cases := []string{
		"check out https://example.com/deal",
		"go to www.spam.example now",
		"visit totally-legit.xyz/offer",
	}
	for _, text := range cases {
		res := f.Check(text)
		if !res.Flagged || res.Reason != "url" {
			t.Errorf("expected url flag for %q, got %+v", text, res)
		}
	}
}

func TestCheck_PhoneNumbers(t *testing.T) {
	f := NewFilter(nil)

	cases := []string{
		"call me at 555-123-4567",
		"my number is +1 555 123 4567",
	}
	for _, text := range cases {
		res := f.Check(text)
		if !res.Flagged || res.Reason != "phone" {
			t.Errorf("expected phone flag for %q, got %+v", text, res)
		}
	}
}

func TestCheck_Flooding(t *testing.T) {
	f := NewFilter(nil)

	res := f.Check("aaaaaaaa")
	if !res.Flagged || res.Reason != "char_flood" {
		t.Errorf("expected char_flood, got %+v", res)
	}

	res = f.Check("buy buy buy now")
	if !res.Flagged || res.Reason != "word_flood" {
		t.Errorf("expected word_flood, got %+v", res)
	}
}

func TestCheck_Blocklist(t *testing.T) {
	f := NewFilter([]string{"Forbidden", "  spamword  ", ""})

	res := f.Check("this contains a FORBIDDEN term")
	if !res.Flagged || res.Reason != "blocklist" || res.Term != "forbidden" {
		t.Errorf("expected blocklist hit on forbidden, got %+v", res)
	}

	if res := f.Check("nothing wrong here"); res.Flagged {
		t.Errorf("unexpected flag: %+v", res)
	}
}
