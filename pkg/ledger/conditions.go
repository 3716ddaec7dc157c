package ledger

import (
	"fmt"

	"github.com/fystack/spendkit/pkg/bls"
)

// Condition opcodes. Values are part of the wire format.
const (
	OpAggSigMe                 uint16 = 50
	OpCreateCoin               uint16 = 51
	OpReserveFee               uint16 = 52
	OpCreateCoinAnnouncement   uint16 = 60
	OpAssertCoinAnnouncement   uint16 = 61
	OpCreatePuzzleAnnouncement uint16 = 62
	OpAssertPuzzleAnnouncement uint16 = 63
	OpAssertConcurrentSpend    uint16 = 64
	OpAssertSecondsAbsolute    uint16 = 80
	OpAssertHeightAbsolute     uint16 = 83
)

// A Condition is a declarative effect produced by evaluating a coin's puzzle.
// The engine emits its own declarative conditions when finalizing a spend;
// everything else comes out of the evaluator gateway.
type Condition interface {
	Opcode() uint16
	encodeBody(e *Encoder)
}

type CreateCoin struct {
	PuzzleHash Hash256
	Amount     uint64
	Memos      [][]byte
}

type ReserveFee struct {
	Amount uint64
}

type AggSigMe struct {
	PublicKey bls.PublicKey
	Message   []byte
}

type AssertConcurrentSpend struct {
	CoinID Hash256
}

type CreateCoinAnnouncement struct {
	Message []byte
}

type AssertCoinAnnouncement struct {
	AnnouncementID Hash256
}

type CreatePuzzleAnnouncement struct {
	Message []byte
}

type AssertPuzzleAnnouncement struct {
	AnnouncementID Hash256
}

type AssertSecondsAbsolute struct {
	Seconds uint64
}

type AssertHeightAbsolute struct {
	Height uint32
}

// Opaque carries asset-specific conditions the engine passes through without
// interpretation. Reserved opcodes are rejected at encode time.
type Opaque struct {
	Code    uint16
	Payload []byte
}

func (c CreateCoin) Opcode() uint16               { return OpCreateCoin }
func (c ReserveFee) Opcode() uint16               { return OpReserveFee }
func (c AggSigMe) Opcode() uint16                 { return OpAggSigMe }
func (c AssertConcurrentSpend) Opcode() uint16    { return OpAssertConcurrentSpend }
func (c CreateCoinAnnouncement) Opcode() uint16   { return OpCreateCoinAnnouncement }
func (c AssertCoinAnnouncement) Opcode() uint16   { return OpAssertCoinAnnouncement }
func (c CreatePuzzleAnnouncement) Opcode() uint16 { return OpCreatePuzzleAnnouncement }
func (c AssertPuzzleAnnouncement) Opcode() uint16 { return OpAssertPuzzleAnnouncement }
func (c AssertSecondsAbsolute) Opcode() uint16    { return OpAssertSecondsAbsolute }
func (c AssertHeightAbsolute) Opcode() uint16     { return OpAssertHeightAbsolute }
func (c Opaque) Opcode() uint16                   { return c.Code }

func (c CreateCoin) encodeBody(e *Encoder) {
	e.WriteHash(c.PuzzleHash)
	e.WriteUint64(c.Amount)
	e.WriteUint32(uint32(len(c.Memos)))
	for _, m := range c.Memos {
		e.WriteBytes(m)
	}
}

func (c ReserveFee) encodeBody(e *Encoder) {
	e.WriteUint64(c.Amount)
}

func (c AggSigMe) encodeBody(e *Encoder) {
	e.WriteBytes(c.PublicKey[:])
	e.WriteBytes(c.Message)
}

func (c AssertConcurrentSpend) encodeBody(e *Encoder) {
	e.WriteHash(c.CoinID)
}

func (c CreateCoinAnnouncement) encodeBody(e *Encoder) {
	e.WriteBytes(c.Message)
}

func (c AssertCoinAnnouncement) encodeBody(e *Encoder) {
	e.WriteHash(c.AnnouncementID)
}

func (c CreatePuzzleAnnouncement) encodeBody(e *Encoder) {
	e.WriteBytes(c.Message)
}

func (c AssertPuzzleAnnouncement) encodeBody(e *Encoder) {
	e.WriteHash(c.AnnouncementID)
}

func (c AssertSecondsAbsolute) encodeBody(e *Encoder) {
	e.WriteUint64(c.Seconds)
}

func (c AssertHeightAbsolute) encodeBody(e *Encoder) {
	e.WriteUint32(c.Height)
}

func (c Opaque) encodeBody(e *Encoder) {
	e.WriteBytes(c.Payload)
}

var reservedOpcodes = map[uint16]bool{
	OpAggSigMe: true, OpCreateCoin: true, OpReserveFee: true,
	OpCreateCoinAnnouncement: true, OpAssertCoinAnnouncement: true,
	OpCreatePuzzleAnnouncement: true, OpAssertPuzzleAnnouncement: true,
	OpAssertConcurrentSpend: true, OpAssertSecondsAbsolute: true,
	OpAssertHeightAbsolute: true,
}

// EncodeConditions serializes a condition list canonically. The serialized
// form doubles as the body of a standard-spend solution.
func EncodeConditions(conds []Condition) (Program, error) {
	e := NewEncoder()
	e.WriteUint32(uint32(len(conds)))
	for _, c := range conds {
		if op, ok := c.(Opaque); ok && reservedOpcodes[op.Code] {
			return nil, fmt.Errorf("ledger: opaque condition uses reserved opcode %d", op.Code)
		}
		e.WriteUint16(c.Opcode())
		c.encodeBody(e)
	}
	return Program(e.Bytes()), nil
}

// DecodeConditions parses a canonical condition list and verifies the buffer
// is fully consumed.
func DecodeConditions(p Program) ([]Condition, error) {
	d := NewDecoder(p)
	conds, err := readConditions(d)
	if err != nil {
		return nil, err
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return conds, nil
}

func readConditions(d *Decoder) ([]Condition, error) {
	n := d.ReadUint32()
	if !d.checkCount(n, 2) {
		return nil, d.Err()
	}
	conds := make([]Condition, 0, n)
	for i := uint32(0); i < n; i++ {
		op := d.ReadUint16()
		if d.Err() != nil {
			return nil, d.Err()
		}
		var c Condition
		switch op {
		case OpCreateCoin:
			cc := CreateCoin{PuzzleHash: d.ReadHash(), Amount: d.ReadUint64()}
			m := d.ReadUint32()
			if !d.checkCount(m, 4) {
				return nil, d.Err()
			}
			for j := uint32(0); j < m; j++ {
				cc.Memos = append(cc.Memos, d.ReadBytes())
			}
			c = cc
		case OpReserveFee:
			c = ReserveFee{Amount: d.ReadUint64()}
		case OpAggSigMe:
			pkb := d.ReadBytes()
			msg := d.ReadBytes()
			if d.Err() != nil {
				return nil, d.Err()
			}
			pk, err := bls.PublicKeyFromBytes(pkb)
			if err != nil {
				return nil, err
			}
			c = AggSigMe{PublicKey: pk, Message: msg}
		case OpAssertConcurrentSpend:
			c = AssertConcurrentSpend{CoinID: d.ReadHash()}
		case OpCreateCoinAnnouncement:
			c = CreateCoinAnnouncement{Message: d.ReadBytes()}
		case OpAssertCoinAnnouncement:
			c = AssertCoinAnnouncement{AnnouncementID: d.ReadHash()}
		case OpCreatePuzzleAnnouncement:
			c = CreatePuzzleAnnouncement{Message: d.ReadBytes()}
		case OpAssertPuzzleAnnouncement:
			c = AssertPuzzleAnnouncement{AnnouncementID: d.ReadHash()}
		case OpAssertSecondsAbsolute:
			c = AssertSecondsAbsolute{Seconds: d.ReadUint64()}
		case OpAssertHeightAbsolute:
			c = AssertHeightAbsolute{Height: d.ReadUint32()}
		default:
			c = Opaque{Code: op, Payload: d.ReadBytes()}
		}
		if d.Err() != nil {
			return nil, d.Err()
		}
		conds = append(conds, c)
	}
	return conds, nil
}

// ConditionsHash is the canonical digest of a condition list. The standard
// spend puzzle requires a signature over this digest.
func ConditionsHash(conds []Condition) (Hash256, error) {
	p, err := EncodeConditions(conds)
	if err != nil {
		return Hash256{}, err
	}
	return HashBytes(p), nil
}

// CoinAnnouncementID identifies an announcement created by a specific coin.
func CoinAnnouncementID(coinID Hash256, message []byte) Hash256 {
	return HashConcat(coinID[:], message)
}

// PuzzleAnnouncementID identifies an announcement created by any coin with a
// specific puzzle hash.
func PuzzleAnnouncementID(puzzleHash Hash256, message []byte) Hash256 {
	return HashConcat(puzzleHash[:], message)
}
