// Package thumb2 is a pure Thumb-2 instruction encoder: every exported
// function returns the encoded half-word(s) for one instruction (or an
// error for an out-of-range operand), with no dependency on the parser or
// on any compiler state. This mirrors the teacher corpus's
// architecture-specific instruction-encoder files, where encoding is
// isolated from code generation so it can be unit-tested against fixed
// bit patterns (spec §9's design note on keeping "the Thumb-2 BL encoding
// isolated so it can be unit-tested").
//
// Registers are identified by index 0-7 (the Thumb-1 low register set);
// r7 is reserved by the codegen as the frame pointer and SP/LR/PC are
// addressed through the dedicated stack/branch encoders below.
package thumb2

import "fmt"

// Cond is a Thumb branch condition code.
type Cond uint8

const (
	EQ Cond = 0x0
	NE Cond = 0x1
	CS Cond = 0x2
	CC Cond = 0x3
	MI Cond = 0x4
	PL Cond = 0x5
	VS Cond = 0x6
	VC Cond = 0x7
	HI Cond = 0x8
	LS Cond = 0x9
	GE Cond = 0xA
	LT Cond = 0xB
	GT Cond = 0xC
	LE Cond = 0xD
	AL Cond = 0xE
)

func checkLowReg(name string, r int) error {
	if r < 0 || r > 7 {
		return fmt.Errorf("thumb2: %s register out of range: r%d", name, r)
	}
	return nil
}

// MovImm8 encodes "MOVS Rd, #imm8" (T1), imm8 in [0,255].
func MovImm8(rd int, imm uint8) (uint16, error) {
	if err := checkLowReg("rd", rd); err != nil {
		return 0, err
	}
	return 0x2000 | uint16(rd)<<8 | uint16(imm), nil
}

// Neg encodes "NEGS Rd, Rn" (RSB Rd, Rn, #0).
func Neg(rd, rn int) (uint16, error) {
	if err := checkLowReg("rd", rd); err != nil {
		return 0, err
	}
	if err := checkLowReg("rn", rn); err != nil {
		return 0, err
	}
	return 0x4240 | uint16(rn)<<3 | uint16(rd), nil
}

// LdrSP encodes "LDR Rd, [SP, #imm8*4]", imm8 in [0,255] (word offset).
func LdrSP(rd int, wordOffset uint8) (uint16, error) {
	if err := checkLowReg("rd", rd); err != nil {
		return 0, err
	}
	return 0x9800 | uint16(rd)<<8 | uint16(wordOffset), nil
}

// StrSP encodes "STR Rt, [SP, #imm8*4]".
func StrSP(rt int, wordOffset uint8) (uint16, error) {
	if err := checkLowReg("rt", rt); err != nil {
		return 0, err
	}
	return 0x9000 | uint16(rt)<<8 | uint16(wordOffset), nil
}

// AddImm8 encodes "ADDS Rd, Rd, #imm8" (single-operand immediate add).
func AddImm8(rd int, imm uint8) (uint16, error) {
	if err := checkLowReg("rd", rd); err != nil {
		return 0, err
	}
	return 0x3000 | uint16(rd)<<8 | uint16(imm), nil
}

// SubImm8 encodes "SUBS Rd, Rd, #imm8".
func SubImm8(rd int, imm uint8) (uint16, error) {
	if err := checkLowReg("rd", rd); err != nil {
		return 0, err
	}
	return 0x3800 | uint16(rd)<<8 | uint16(imm), nil
}

// LslImm5 encodes "LSLS Rd, Rm, #imm5" (immediate shift, imm5 in [0,31]).
func LslImm5(rd, rm int, imm5 uint8) (uint16, error) {
	if err := checkLowReg("rd", rd); err != nil {
		return 0, err
	}
	if err := checkLowReg("rm", rm); err != nil {
		return 0, err
	}
	if imm5 > 31 {
		return 0, fmt.Errorf("thumb2: LSL shift out of range: %d", imm5)
	}
	return 0x0000 | uint16(imm5)<<6 | uint16(rm)<<3 | uint16(rd), nil
}

// LdrImm5 encodes "LDR Rd, [Rn, #imm5*4]" (register-base immediate load,
// imm5 in [0,31] word units), used for frame-pointer-relative local
// access (the frame pointer is an ordinary low register, unlike LdrSP
// which hardcodes SP as the base).
func LdrImm5(rd, rn int, wordOffset uint8) (uint16, error) {
	if err := checkLowReg("rd", rd); err != nil {
		return 0, err
	}
	if err := checkLowReg("rn", rn); err != nil {
		return 0, err
	}
	if wordOffset > 31 {
		return 0, fmt.Errorf("thumb2: LDR word offset out of range: %d", wordOffset)
	}
	return 0x6800 | uint16(wordOffset)<<6 | uint16(rn)<<3 | uint16(rd), nil
}

// StrImm5 encodes "STR Rt, [Rn, #imm5*4]".
func StrImm5(rt, rn int, wordOffset uint8) (uint16, error) {
	if err := checkLowReg("rt", rt); err != nil {
		return 0, err
	}
	if err := checkLowReg("rn", rn); err != nil {
		return 0, err
	}
	if wordOffset > 31 {
		return 0, fmt.Errorf("thumb2: STR word offset out of range: %d", wordOffset)
	}
	return 0x6000 | uint16(wordOffset)<<6 | uint16(rn)<<3 | uint16(rt), nil
}

// MovHiReg encodes "MOV Rd, Rm" (format 5), the only Thumb-1 data-movement
// instruction whose operands may name any of r0-r15, used to set up and
// tear down the frame pointer (r7) against SP.
func MovHiReg(rd, rm int) (uint16, error) {
	if rd < 0 || rd > 15 || rm < 0 || rm > 15 {
		return 0, fmt.Errorf("thumb2: MOV register out of range: rd=%d rm=%d", rd, rm)
	}
	var h1, h2 uint16
	rdField := uint16(rd)
	rmField := uint16(rm)
	if rd >= 8 {
		h1 = 1
		rdField -= 8
	}
	if rm >= 8 {
		h2 = 1
		rmField -= 8
	}
	return 0x4600 | h1<<7 | h2<<6 | rmField<<3 | rdField, nil
}

// AddReg3 encodes "ADDS Rd, Rn, Rm" (3-operand register form).
func AddReg3(rd, rn, rm int) (uint16, error) {
	for name, r := range map[string]int{"rd": rd, "rn": rn, "rm": rm} {
		if err := checkLowReg(name, r); err != nil {
			return 0, err
		}
	}
	return 0x1800 | uint16(rm)<<6 | uint16(rn)<<3 | uint16(rd), nil
}

// SubReg3 encodes "SUBS Rd, Rn, Rm".
func SubReg3(rd, rn, rm int) (uint16, error) {
	for name, r := range map[string]int{"rd": rd, "rn": rn, "rm": rm} {
		if err := checkLowReg(name, r); err != nil {
			return 0, err
		}
	}
	return 0x1A00 | uint16(rm)<<6 | uint16(rn)<<3 | uint16(rd), nil
}

// twoOpALU encodes the Thumb-1 "data processing register" family: Rd =
// Rd OP Rm, opcode identifies which of AND/EOR/LSL/LSR/... (16 total).
func twoOpALU(opcode, rd, rm int) (uint16, error) {
	if err := checkLowReg("rd", rd); err != nil {
		return 0, err
	}
	if err := checkLowReg("rm", rm); err != nil {
		return 0, err
	}
	return 0x4000 | uint16(opcode)<<6 | uint16(rm)<<3 | uint16(rd), nil
}

// Mul encodes "MULS Rd, Rm, Rd" (Rd = Rd * Rm).
func Mul(rd, rm int) (uint16, error) { return twoOpALU(0xD, rd, rm) }

// And encodes "ANDS Rd, Rd, Rm".
func And(rd, rm int) (uint16, error) { return twoOpALU(0x0, rd, rm) }

// Orr encodes "ORRS Rd, Rd, Rm".
func Orr(rd, rm int) (uint16, error) { return twoOpALU(0xC, rd, rm) }

// Eor encodes "EORS Rd, Rd, Rm".
func Eor(rd, rm int) (uint16, error) { return twoOpALU(0x1, rd, rm) }

// Lsl encodes "LSLS Rd, Rd, Rm" (register-controlled shift).
func Lsl(rd, rm int) (uint16, error) { return twoOpALU(0x2, rd, rm) }

// Lsr encodes "LSRS Rd, Rd, Rm".
func Lsr(rd, rm int) (uint16, error) { return twoOpALU(0x3, rd, rm) }

// Cmp encodes "CMP Rn, Rm".
func Cmp(rn, rm int) (uint16, error) { return twoOpALU(0xA, rn, rm) }

// BCond encodes a conditional short branch "B<cond> label" (T1), where
// offsetBytes = target - (patchAddr + 4), in the range [-256, 254] and
// even.
func BCond(cond Cond, offsetBytes int32) (uint16, error) {
	if offsetBytes%2 != 0 {
		return 0, fmt.Errorf("thumb2: branch offset must be even: %d", offsetBytes)
	}
	half := offsetBytes / 2
	if half < -128 || half > 127 {
		return 0, fmt.Errorf("thumb2: conditional branch out of 8-bit range: %d", offsetBytes)
	}
	return 0xD000 | uint16(cond)<<8 | uint16(uint8(int8(half))), nil
}

// B encodes an unconditional short branch "B label" (T2), offsetBytes in
// the range [-2048, 2046].
func B(offsetBytes int32) (uint16, error) {
	if offsetBytes%2 != 0 {
		return 0, fmt.Errorf("thumb2: branch offset must be even: %d", offsetBytes)
	}
	half := offsetBytes / 2
	if half < -1024 || half > 1023 {
		return 0, fmt.Errorf("thumb2: short branch out of 11-bit range: %d", offsetBytes)
	}
	return 0xE000 | uint16(half)&0x7FF, nil
}

// Svc encodes "SVC #imm8", used by the syscall trampoline.
func Svc(imm uint8) uint16 {
	return 0xDF00 | uint16(imm)
}

// PushLowLR encodes "PUSH {regs..., LR}" where regs is a subset of r0-r7.
func PushLowLR(regs []int, includeLR bool) (uint16, error) {
	mask, err := lowRegMask(regs)
	if err != nil {
		return 0, err
	}
	var r uint16
	if includeLR {
		r = 1
	}
	return 0xB400 | r<<8 | mask, nil
}

// PopLowPC encodes "POP {regs..., PC}".
func PopLowPC(regs []int, includePC bool) (uint16, error) {
	mask, err := lowRegMask(regs)
	if err != nil {
		return 0, err
	}
	var r uint16
	if includePC {
		r = 1
	}
	return 0xBC00 | r<<8 | mask, nil
}

func lowRegMask(regs []int) (uint16, error) {
	var mask uint16
	for _, r := range regs {
		if err := checkLowReg("reglist", r); err != nil {
			return 0, err
		}
		mask |= 1 << uint(r)
	}
	return mask, nil
}

// SubSP encodes "SUB SP, SP, #imm", imm a multiple of 4 in [0, 508].
func SubSP(imm uint32) (uint16, error) {
	if imm%4 != 0 || imm > 508 {
		return 0, fmt.Errorf("thumb2: SUB SP immediate out of range: %d", imm)
	}
	return 0xB080 | uint16(imm/4), nil
}

// AddSP encodes "ADD SP, SP, #imm", imm a multiple of 4 in [0, 508].
func AddSP(imm uint32) (uint16, error) {
	if imm%4 != 0 || imm > 508 {
		return 0, fmt.Errorf("thumb2: ADD SP immediate out of range: %d", imm)
	}
	return 0xB000 | uint16(imm/4), nil
}

// EncodeBL implements spec §4.D's THUMB_CALL relocation: a 32-bit Thumb-2
// BL targeting symValue from patchAddr, using the ARMv7-M J1/J2 bit
// scheme. Returns (hi, lo) half-words in emission order.
func EncodeBL(symValue, patchAddr uint32) (hi, lo uint16, err error) {
	off := int64(int32(symValue) - int32(patchAddr) - 4)
	if off%2 != 0 {
		return 0, 0, fmt.Errorf("thumb2: BL offset must be even: %d", off)
	}
	const lo24 = 1 << 24
	if off < -lo24 || off >= lo24 {
		return 0, 0, fmt.Errorf("thumb2: BL target out of 25-bit range: %d", off)
	}
	u := uint32(off) & 0x01FFFFFF
	s := (u >> 24) & 1
	i1 := (u >> 23) & 1
	i2 := (u >> 22) & 1
	imm10 := (u >> 12) & 0x3FF
	imm11 := (u >> 1) & 0x7FF
	j1 := (^i1 ^ s) & 1
	j2 := (^i2 ^ s) & 1
	hi = 0xF000 | uint16(s<<10) | uint16(imm10)
	lo = 0xD000 | uint16(j1<<13) | uint16(j2<<11) | uint16(imm11)
	return hi, lo, nil
}

// EncodeBW encodes a 32-bit unconditional Thumb-2 branch (B.W), used for
// THUMB_BRANCH relocations. It shares BL's S/I1/I2/J1/J2 derivation (the
// two encodings differ only in bit 14 of the second half-word).
func EncodeBW(symValue, patchAddr uint32) (hi, lo uint16, err error) {
	hi, lo, err = EncodeBL(symValue, patchAddr)
	if err != nil {
		return 0, 0, err
	}
	// Clear bit 14 (which BL always sets to 1) to turn the BL encoding
	// into the link-free B.W encoding.
	lo &^= 1 << 14
	return hi, lo, nil
}

// DecodeBranchOffset recovers the byte offset encoded by a BL/B.W
// half-word pair, the inverse of EncodeBL/EncodeBW, used by tests to
// round-trip the encoding.
func DecodeBranchOffset(hi, lo uint16) int32 {
	s := uint32(hi>>10) & 1
	imm10 := uint32(hi) & 0x3FF
	j1 := uint32(lo>>13) & 1
	j2 := uint32(lo>>11) & 1
	imm11 := uint32(lo) & 0x7FF
	i1 := (^(j1 ^ s)) & 1
	i2 := (^(j2 ^ s)) & 1
	u := (i1 << 23) | (i2 << 22) | (imm10 << 12) | (imm11 << 1)
	if s != 0 {
		u |= 0xFF000000
	}
	return int32(u)
}
