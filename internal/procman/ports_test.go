package procman

import (
	"fmt"
	"net"
	"testing"
)

func TestPortAllocator(t *testing.T) {
	a := NewPortAllocator(45100, 10)

	p1, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	p2, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if p1 == p2 {
		t.Errorf("allocator handed out the same port twice: %d", p1)
	}
	if p1 < 45100 || p1 >= 45110 {
		t.Errorf("port %d outside configured range", p1)
	}

	a.Release(p1)
	p3, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate after release failed: %v", err)
	}
	if p3 != p1 {
		t.Errorf("expected released port %d to be reused, got %d", p1, p3)
	}
}

func TestPortAllocatorExhaustion(t *testing.T) {
	a := NewPortAllocator(45200, 2)

	if _, err := a.Allocate(); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if _, err := a.Allocate(); err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if _, err := a.Allocate(); err == nil {
		t.Fatal("expected error when range is exhausted")
	}
}

func TestPortAllocatorSkipsBoundPort(t *testing.T) {
	// Occupy the first port of the range so the allocator must skip it
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", 45300))
	if err != nil {
		t.Skipf("could not bind test port: %v", err)
	}
	defer l.Close()

	a := NewPortAllocator(45300, 5)
	p, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if p == 45300 {
		t.Error("allocator handed out a port that is already bound")
	}
}
