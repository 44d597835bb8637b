package timer

import "testing"

func TestTimer_FallingEdgeOnDIVWrite(t *testing.T) {
	tm := New()
	tm.tac = 0x05 // enable + 262144 Hz (bit 3)
	tm.tima = 0x10
	tm.divInternal = 0x0008 // bit3=1
	if !tm.input() {
		t.Fatalf("expected input true")
	}
	tm.WriteDIV()
	if tm.tima != 0x11 {
		t.Fatalf("TIMA not incremented on DIV falling edge: got %02X want 11", tm.tima)
	}
}

func TestTimer_FallingEdgeOnTACWrite(t *testing.T) {
	tm := New()
	tm.tima = 0x20
	tm.divInternal = 0x0008 // bit3=1, bit5=0
	tm.tac = 0x05           // enable + bit3
	if !tm.input() {
		t.Fatalf("expected input true before TAC change")
	}
	tm.WriteTAC(0x06) // switch select to bit5, currently 0 -> falling edge
	if tm.tima != 0x21 {
		t.Fatalf("TIMA not incremented on TAC falling edge: got %02X want 21", tm.tima)
	}
}

func TestTimer_OverflowReloadTiming(t *testing.T) {
	tm := New()
	tm.tac = 0x05
	tm.tma = 0xAB
	tm.tima = 0xFF
	tm.divInternal = 0x000F // bit3=1; next tick clears it -> falling edge

	if irq := tm.Tick(); irq {
		t.Fatalf("IRQ fired on the overflow tick itself")
	}
	if tm.tima != 0x00 {
		t.Fatalf("TIMA after overflow got %02X want 00", tm.tima)
	}
	for i := 0; i < 3; i++ {
		if irq := tm.Tick(); irq {
			t.Fatalf("IRQ fired early at delay cycle %d", i)
		}
		if tm.tima != 0x00 {
			t.Fatalf("TIMA changed during delay: got %02X want 00", tm.tima)
		}
	}
	if irq := tm.Tick(); !irq {
		t.Fatalf("expected IRQ on the 4th delay cycle")
	}
	if tm.tima != 0xAB {
		t.Fatalf("TIMA after reload got %02X want AB", tm.tima)
	}
}

func TestTimer_PendingReloadIgnoresFallingEdges(t *testing.T) {
	tm := New()
	tm.tac = 0x05
	tm.tma = 0x33
	tm.tima = 0xFF
	tm.divInternal = 0x000F
	tm.Tick() // overflow; reload pending

	tm.divInternal = 0x0008
	if !tm.input() {
		t.Fatalf("expected input true before DIV write")
	}
	tm.WriteDIV() // falling edge while reload pending: must not increment
	if tm.tima != 0x00 {
		t.Fatalf("TIMA incremented during pending reload: got %02X want 00", tm.tima)
	}
	for i := 0; i < 4; i++ {
		tm.Tick()
	}
	if tm.tima != 0x33 {
		t.Fatalf("reload did not occur: got %02X want 33", tm.tima)
	}
}

func TestTimer_TIMAWriteCancelsReload(t *testing.T) {
	tm := New()
	tm.tac = 0x05
	tm.tma = 0x55
	tm.tima = 0xFF
	tm.divInternal = 0x000F
	tm.Tick() // overflow, reload pending
	tm.WriteTIMA(0x77)
	for i := 0; i < 8; i++ {
		tm.Tick()
	}
	if tm.tima != 0x77 {
		t.Fatalf("TIMA write during delay not retained: got %02X want 77", tm.tima)
	}
}

func TestTimer_TMAWriteDuringDelayAffectsReload(t *testing.T) {
	tm := New()
	tm.tac = 0x05
	tm.tima = 0xFF
	tm.tma = 0x11
	tm.divInternal = 0x000F
	tm.Tick()
	tm.WriteTMA(0x22)
	for i := 0; i < 4; i++ {
		tm.Tick()
	}
	if tm.tima != 0x22 {
		t.Fatalf("TMA write during delay not reflected: got %02X want 22", tm.tima)
	}
}

func TestTimer_DisabledNeverIncrements(t *testing.T) {
	tm := New()
	tm.tac = 0x00 // disabled
	for i := 0; i < 1000; i++ {
		tm.Tick()
	}
	if tm.tima != 0 {
		t.Fatalf("TIMA incremented while disabled: got %02X", tm.tima)
	}
	if tm.DIV() != byte(1000>>8) {
		t.Fatalf("DIV got %02X want %02X", tm.DIV(), byte(1000>>8))
	}
}
