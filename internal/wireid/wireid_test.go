package wireid

import "testing"

func TestSubscriptionsAreMonotonicAndUnique(t *testing.T) {
	var s Subscriptions
	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 100; i++ {
		id := s.Next()
		if seen[id] {
			t.Fatalf("duplicate subscription id %q", id)
		}
		seen[id] = true
		if id == prev {
			t.Fatalf("id did not advance: %q", id)
		}
		prev = id
	}
}

func TestReceiptAndTransactionIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		for _, id := range []string{Receipt(), Transaction()} {
			if seen[id] {
				t.Fatalf("duplicate id %q", id)
			}
			seen[id] = true
		}
	}
}
