/*
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ssa

import (
    `fmt`
    `strings`
)

// The register file is addressed in 16-bit units. A scalar occupies 1, 2 or 4
// consecutive units depending on its size, a vector occupies channels times
// that. Memory "registers" are stack slots addressed the same way, in a much
// larger, modelled-only space.
const (
    NumRegs     = 256
    NumMemSlots = 2048
)

// MaxVecUnits bounds the width of a single allocation in 16-bit units.
// Anything wider cannot be represented and is a frontend bug.
const MaxVecUnits = 16

type RegClass uint8

const (
    ClassGPR RegClass = iota
    ClassMem
    _NumClasses
)

func (self RegClass) String() string {
    switch self {
        case ClassGPR : return "gpr"
        case ClassMem : return "mem"
        default       : panic("invalid register class")
    }
}

type Size uint8

const (
    S16 Size = iota
    S32
    S64
)

// Units is the number of 16-bit register units a scalar of this size occupies.
func (self Size) Units() uint8 {
    return 1 << self
}

func (self Size) String() string {
    return fmt.Sprintf("%d", 16 << self)
}

type IndexType uint8

const (
    IndexNull IndexType = iota
    IndexNormal
    IndexRegister
    IndexImmediate
    IndexUniform
    IndexUndef
)

// Index is a single operand. Normal operands reference an SSA value by id,
// register operands a concrete unit in the register file (or a stack slot
// when Memory is set). Kill marks the last use of a source.
type Index struct {
    Type   IndexType
    Value  uint32
    Size   Size
    Chans  uint8
    Memory bool
    Kill   bool
}

func SSAValue(v uint32, size Size) Index {
    return Index { Type: IndexNormal, Value: v, Size: size, Chans: 1 }
}

func SSAVec(v uint32, size Size, chans uint8) Index {
    return Index { Type: IndexNormal, Value: v, Size: size, Chans: chans }
}

func Register(r uint16, size Size) Index {
    return Index { Type: IndexRegister, Value: uint32(r), Size: size, Chans: 1 }
}

func RegisterVec(r uint16, size Size, chans uint8) Index {
    return Index { Type: IndexRegister, Value: uint32(r), Size: size, Chans: chans }
}

func Immediate(v uint32) Index {
    return Index { Type: IndexImmediate, Value: v, Size: S16, Chans: 1 }
}

func Uniform(u uint16, size Size) Index {
    return Index { Type: IndexUniform, Value: uint32(u), Size: size, Chans: 1 }
}

func Null() Index {
    return Index { Type: IndexNull }
}

// registerLike converts an SSA operand into the register operand it was
// assigned to, keeping size, channel count, class and kill flag.
func registerLike(reg uint16, tpl Index) Index {
    return Index {
        Type   : IndexRegister,
        Value  : uint32(reg),
        Size   : tpl.Size,
        Chans  : tpl.Chans,
        Memory : tpl.Memory,
        Kill   : tpl.Kill,
    }
}

func (self Index) IsNull() bool {
    return self.Type == IndexNull
}

func (self Index) IsSSA() bool {
    return self.Type == IndexNormal
}

func (self Index) Class() RegClass {
    if self.Memory {
        return ClassMem
    } else {
        return ClassGPR
    }
}

// Width is the operand footprint in 16-bit units, before any rounding.
func (self Index) Width() uint8 {
    return self.Chans * self.Size.Units()
}

// equiv reports whether two operands reference the same storage.
func (self Index) equiv(other Index) bool {
    return self.Type == other.Type && self.Value == other.Value && self.Memory == other.Memory
}

func (self Index) String() string {
    var s string
    switch self.Type {
        case IndexNull      : return "_"
        case IndexNormal    : s = fmt.Sprintf("v%d", self.Value)
        case IndexRegister  : s = fmt.Sprintf("r%d", self.Value)
        case IndexImmediate : return fmt.Sprintf("#%d", self.Value)
        case IndexUniform   : return fmt.Sprintf("u%d", self.Value)
        case IndexUndef     : return "undef"
        default             : panic("invalid operand type")
    }

    /* memory class, vector width and kill markers */
    if self.Memory             { s = "m" + s[1:] }
    if self.Chans > 1          { s = fmt.Sprintf("%s:%d", s, self.Chans) }
    if self.Kill               { s += "!" }
    return s
}

type Op uint8

const (
    OpNop Op = iota
    OpMov
    OpMovImm
    OpFAdd
    OpFMul
    OpIAdd
    OpPhi
    OpCollect
    OpSplit
    OpPreload
    OpParallelCopy
    OpJump
    OpBranch
    OpReturn
)

func (self Op) String() string {
    switch self {
        case OpNop          : return "nop"
        case OpMov          : return "mov"
        case OpMovImm       : return "mov_imm"
        case OpFAdd         : return "fadd"
        case OpFMul         : return "fmul"
        case OpIAdd         : return "iadd"
        case OpPhi          : return "phi"
        case OpCollect      : return "collect"
        case OpSplit        : return "split"
        case OpPreload      : return "preload"
        case OpParallelCopy : return "par_copy"
        case OpJump         : return "jmp"
        case OpBranch       : return "br"
        case OpReturn       : return "ret"
        default             : panic("invalid opcode")
    }
}

// IsControl marks block terminators. Parallel copies implementing phi
// semantics are inserted before these.
func (self Op) IsControl() bool {
    return self == OpJump || self == OpBranch || self == OpReturn
}

// Copy is one entry of a parallel copy. All sources are read before any
// destination is written, so cyclic shuffles are representable.
type Copy struct {
    Dest    uint16
    DestMem bool
    Src     Index
}

func (self Copy) String() string {
    if self.DestMem {
        return fmt.Sprintf("m%d = %s", self.Dest, self.Src)
    } else {
        return fmt.Sprintf("r%d = %s", self.Dest, self.Src)
    }
}

// Instr is one operation: an opcode with ordered destination and source
// operand lists. The allocator rewrites the operands in place.
type Instr struct {
    Op     Op
    Dest   []Index
    Src    []Index
    Copies []Copy
}

func newInstr(op Op, dest []Index, src []Index) *Instr {
    return &Instr { Op: op, Dest: dest, Src: src }
}

func newMov(dst Index, src Index) *Instr {
    return newInstr(OpMov, []Index { dst }, []Index { src })
}

func newMovImm(dst Index, v uint32) *Instr {
    return newInstr(OpMovImm, []Index { dst }, []Index { Immediate(v) })
}

func newParallelCopy(copies []Copy) *Instr {
    return &Instr { Op: OpParallelCopy, Copies: copies }
}

func (self *Instr) String() string {
    dst := make([]string, 0, len(self.Dest))
    src := make([]string, 0, len(self.Src))

    /* parallel copies carry their payload out of band */
    if self.Op == OpParallelCopy {
        cc := make([]string, 0, len(self.Copies))
        for _, c := range self.Copies { cc = append(cc, c.String()) }
        return fmt.Sprintf("par_copy {%s}", strings.Join(cc, ", "))
    }

    /* dump operands */
    for _, d := range self.Dest { dst = append(dst, d.String()) }
    for _, s := range self.Src  { src = append(src, s.String()) }

    /* join them together */
    if len(dst) == 0 {
        return fmt.Sprintf("%s %s", self.Op, strings.Join(src, ", "))
    } else {
        return fmt.Sprintf("%s = %s %s", strings.Join(dst, ", "), self.Op, strings.Join(src, ", "))
    }
}

// splitWidth is the common destination size of a split, which must agree
// across all non-null destinations.
func splitWidth(p *Instr) Size {
    width := Size(0xff)

    /* every destination must agree */
    for _, d := range p.Dest {
        if d.IsNull() {
            continue
        } else if width != 0xff && width != d.Size {
            panic("ssa: split with mixed destination sizes")
        } else {
            width = d.Size
        }
    }

    /* a split with no destinations should have been removed */
    if width == 0xff {
        panic("ssa: split with no destinations")
    } else {
        return width
    }
}
