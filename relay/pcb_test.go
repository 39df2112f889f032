package relay

import "testing"

func TestPcbBlockType(t *testing.T) {
	cases := []struct {
		pcb  Pcb
		want BlockType
	}{
		{0x13, BlockTypeI},
		{0x12, BlockTypeI},
		{0x02, BlockTypeI},
		{0xA3, BlockTypeR},
		{0xC2, BlockTypeS},
		{0x42, BlockTypeReserved},
	}
	for _, c := range cases {
		if got := c.pcb.BlockType(); got != c.want {
			t.Errorf("Pcb(%#x).BlockType() = %v, want %v", byte(c.pcb), got, c.want)
		}
	}
}

func TestIBlockDecode(t *testing.T) {
	cases := []struct {
		pcb  Pcb
		want IBlockView
	}{
		{0x13, IBlockView{BlockNumber: 1, Chaining: true}},
		{0x12, IBlockView{BlockNumber: 0, Chaining: true}},
		{0x02, IBlockView{BlockNumber: 0, Chaining: false}},
		{0x03, IBlockView{BlockNumber: 1, Chaining: false}},
	}
	for _, c := range cases {
		if got := c.pcb.IBlock(); got != c.want {
			t.Errorf("Pcb(%#x).IBlock() = %+v, want %+v", byte(c.pcb), got, c.want)
		}
	}
}

func TestIBlockRoundTrip(t *testing.T) {
	views := []IBlockView{
		{BlockNumber: 0, Chaining: false},
		{BlockNumber: 1, Chaining: false},
		{BlockNumber: 0, Chaining: true},
		{BlockNumber: 1, Chaining: true},
		{BlockNumber: 1, Chaining: true, HasCID: true, HasNAD: true},
	}
	for _, v := range views {
		pcb := NewIBlock(v)
		if pcb.BlockType() != BlockTypeI {
			t.Fatalf("NewIBlock(%+v) did not tag as I-block: %#x", v, byte(pcb))
		}
		if got := pcb.IBlock(); got != v {
			t.Errorf("round trip %+v -> %#x -> %+v, want match", v, byte(pcb), got)
		}
	}
}

func TestRBlockRoundTrip(t *testing.T) {
	views := []RBlockView{
		{BlockNumber: 0},
		{BlockNumber: 1},
		{BlockNumber: 1, IsNak: true},
		{BlockNumber: 0, HasCID: true},
	}
	for _, v := range views {
		pcb := NewRBlock(v)
		if pcb.BlockType() != BlockTypeR {
			t.Fatalf("NewRBlock(%+v) did not tag as R-block: %#x", v, byte(pcb))
		}
		if got := pcb.RBlock(); got != v {
			t.Errorf("round trip %+v -> %#x -> %+v, want match", v, byte(pcb), got)
		}
	}
}

func TestSBlockRoundTrip(t *testing.T) {
	views := []SBlockView{
		{},
		{HasCID: true},
		{DeselectOrWtx: 2},
	}
	for _, v := range views {
		pcb := NewSBlock(v)
		if pcb.BlockType() != BlockTypeS {
			t.Fatalf("NewSBlock(%+v) did not tag as S-block: %#x", v, byte(pcb))
		}
		if got := pcb.SBlock(); got != v {
			t.Errorf("round trip %+v -> %#x -> %+v, want match", v, byte(pcb), got)
		}
	}
}

func TestToggleBlockNumber(t *testing.T) {
	pcb := Pcb(0x13)
	toggled := pcb.ToggleBlockNumber()
	if toggled.IBlock().BlockNumber != 0 {
		t.Errorf("ToggleBlockNumber(0x13) block number = %d, want 0", toggled.IBlock().BlockNumber)
	}
	if toggled.ToggleBlockNumber() != pcb {
		t.Error("ToggleBlockNumber should be its own inverse")
	}
}

func TestWithChaining(t *testing.T) {
	pcb := Pcb(0x02)
	if pcb.WithChaining(true) != Pcb(0x12) {
		t.Errorf("WithChaining(true) = %#x, want 0x12", byte(pcb.WithChaining(true)))
	}
	if pcb.WithChaining(true).WithChaining(false) != pcb {
		t.Error("WithChaining(false) should clear what WithChaining(true) set")
	}
}

func TestChainStartPcbsDifferOnlyInBlockNumberAfterToggle(t *testing.T) {
	a := PcbChainStart0x13.ToggleBlockNumber()
	b := PcbChainStart0x12.ToggleBlockNumber()
	if a^b != 0x01 {
		t.Errorf("chain-start PCBs should differ only in the block number: 0x13->%#x (bn=%d), 0x12->%#x (bn=%d)",
			byte(a), a.IBlock().BlockNumber, byte(b), b.IBlock().BlockNumber)
	}
}

func TestPcbChainAckIsRBlockNak0(t *testing.T) {
	view := PcbChainAck.RBlock()
	if view.IsNak {
		t.Error("PcbChainAck should be an ACK (IsNak=false), not a NAK")
	}
	if view.BlockNumber != 1 {
		t.Errorf("PcbChainAck block number = %d, want 1", view.BlockNumber)
	}
}
