package masterconn

import (
	"testing"
	"time"
)

func TestIncarnationSignerIssueVerifyRoundTrip(t *testing.T) {
	signer := NewIncarnationSigner([]byte("test-key"))

	token, err := signer.Issue("node-a", 7, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	nodeID, incarnation, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if nodeID != "node-a" || incarnation != 7 {
		t.Fatalf("got (%q, %d), want (node-a, 7)", nodeID, incarnation)
	}
}

func TestIncarnationSignerRejectsWrongKey(t *testing.T) {
	signer := NewIncarnationSigner([]byte("key-one"))
	token, err := signer.Issue("node-a", 1, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other := NewIncarnationSigner([]byte("key-two"))
	if _, _, err := other.Verify(token); err == nil {
		t.Fatalf("expected verification to fail with mismatched key")
	}
}

func TestIncarnationSignerRejectsExpiredToken(t *testing.T) {
	signer := NewIncarnationSigner([]byte("test-key"))
	token, err := signer.Issue("node-a", 1, -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, _, err := signer.Verify(token); err == nil {
		t.Fatalf("expected verification to fail for expired token")
	}
}
