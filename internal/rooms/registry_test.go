package rooms

import (
	"fmt"
	"sync"
	"testing"
)

func TestJoinAndMembers(t *testing.T) {
	r := NewRegistry()

	r.Join("a", 1)
	r.Join("b", 1)
	r.Join("c", 2)

	if n := r.MemberCount(1); n != 2 {
		t.Errorf("room 1 members = %d, want 2", n)
	}
	if n := r.MemberCount(2); n != 1 {
		t.Errorf("room 2 members = %d, want 1", n)
	}
	if room, ok := r.RoomOf("a"); !ok || room != 1 {
		t.Errorf("RoomOf(a) = %d,%v", room, ok)
	}
}

func TestJoinMovesAtomically(t *testing.T) {
	r := NewRegistry()

	r.Join("a", 1)
	r.Join("a", 2)

	if n := r.MemberCount(1); n != 0 {
		t.Errorf("connection still counted in old room: %d", n)
	}
	if n := r.MemberCount(2); n != 1 {
		t.Errorf("connection not counted in new room: %d", n)
	}
	if room, _ := r.RoomOf("a"); room != 2 {
		t.Errorf("RoomOf(a) = %d, want 2", room)
	}

	// Re-joining the current room changes nothing.
	r.Join("a", 2)
	if n := r.MemberCount(2); n != 1 {
		t.Errorf("re-join duplicated membership: %d", n)
	}
}

func TestLeaveIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Join("a", 1)

	room, ok := r.Leave("a")
	if !ok || room != 1 {
		t.Fatalf("Leave(a) = %d,%v, want 1,true", room, ok)
	}
	if _, ok := r.Leave("a"); ok {
		t.Error("second Leave should report not-in-room")
	}
	if n := r.MemberCount(1); n != 0 {
		t.Errorf("membership after double leave: %d", n)
	}
	if _, ok := r.Leave("never-joined"); ok {
		t.Error("Leave of unknown connection should be a no-op")
	}
}

func TestUnknownRoomIsEmptyBucket(t *testing.T) {
	r := NewRegistry()

	// Joining an unprovisioned room id is allowed at this layer.
	r.Join("a", 999)
	if n := r.MemberCount(999); n != 1 {
		t.Errorf("unknown room bucket: %d members", n)
	}
	if got := r.MembersOf(12345); len(got) != 0 {
		t.Errorf("MembersOf(empty) = %v", got)
	}
}

func TestConcurrentRoomSwitching(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conn-%d", i)
			for room := int64(1); room <= 5; room++ {
				r.Join(id, room)
			}
		}(i)
	}
	wg.Wait()

	// Every connection ends up in exactly one room.
	total := 0
	for room := int64(1); room <= 5; room++ {
		total += r.MemberCount(room)
	}
	if total != 40 {
		t.Errorf("total memberships = %d, want 40", total)
	}
}
