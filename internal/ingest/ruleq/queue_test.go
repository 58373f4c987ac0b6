package ruleq

import "testing"

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := New(10)
	q.Enqueue(Request{Venue: "polymarket", MarketID: "a"})
	q.Enqueue(Request{Venue: "polymarket", MarketID: "b"})

	req, ok := q.Dequeue()
	if !ok || req.MarketID != "a" {
		t.Fatalf("expected first-in request a, got %+v ok=%v", req, ok)
	}
	req, ok = q.Dequeue()
	if !ok || req.MarketID != "b" {
		t.Fatalf("expected second request b, got %+v ok=%v", req, ok)
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatalf("expected empty queue")
	}
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	q := New(2)
	q.Enqueue(Request{MarketID: "a"})
	q.Enqueue(Request{MarketID: "b"})
	q.Enqueue(Request{MarketID: "c"})

	if q.Dropped() != 1 {
		t.Fatalf("expected 1 dropped, got %d", q.Dropped())
	}
	if q.Len() != 2 {
		t.Fatalf("expected queue length 2, got %d", q.Len())
	}
	req, ok := q.Dequeue()
	if !ok || req.MarketID != "b" {
		t.Fatalf("expected oldest surviving request b, got %+v", req)
	}
}
