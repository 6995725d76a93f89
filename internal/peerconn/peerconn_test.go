package peerconn

import "testing"

func TestPoolCachesConnections(t *testing.T) {
	p := NewPool(nil)
	defer p.Close()

	c1, err := p.conn("127.0.0.1:9")
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	c2, err := p.conn("127.0.0.1:9")
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	if c1 != c2 {
		t.Fatal("expected cached connection for repeat target")
	}

	c3, err := p.conn("127.0.0.1:10")
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	if c3 == c1 {
		t.Fatal("expected distinct connection for different target")
	}
}

func TestPoolCloseIsIdempotentOnEmptyPool(t *testing.T) {
	p := NewPool(nil)
	if err := p.Close(); err != nil {
		t.Fatalf("Close on empty pool: %v", err)
	}
}
