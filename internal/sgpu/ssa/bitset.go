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
    `math/bits`
)

// _RegBitmap tracks occupancy of a register or slot file at 16-bit unit
// granularity. 2048 bits is enough for the memory class, the GPR class only
// uses the first 256.
type _RegBitmap [NumMemSlots / 64]uint64

func (self *_RegBitmap) set(i uint32) {
    self[i / 64] |= 1 << (i % 64)
}

func (self *_RegBitmap) clear(i uint32) {
    self[i / 64] &^= 1 << (i % 64)
}

func (self *_RegBitmap) test(i uint32) bool {
    return self[i / 64] & (1 << (i % 64)) != 0
}

func (self *_RegBitmap) setRange(base uint32, count uint32) {
    for i := base; i < base + count; i++ {
        self.set(i)
    }
}

func (self *_RegBitmap) clearRange(base uint32, count uint32) {
    for i := base; i < base + count; i++ {
        self.clear(i)
    }
}

// testRange reports whether any unit in [base, base+count) is set.
func (self *_RegBitmap) testRange(base uint32, count uint32) bool {
    for i := base; i < base + count; i++ {
        if self.test(i) {
            return true
        }
    }
    return false
}

// ValueSet is a dynamically sized bitset over SSA value ids, used for
// live-in sets and visited markers.
type ValueSet struct {
    bits []uint64
}

func newValueSet(n uint32) *ValueSet {
    return &ValueSet { bits: make([]uint64, (n + 63) / 64) }
}

func (self *ValueSet) grow(i uint32) {
    for uint32(len(self.bits)) <= i / 64 {
        self.bits = append(self.bits, 0)
    }
}

func (self *ValueSet) add(i uint32) {
    self.grow(i)
    self.bits[i / 64] |= 1 << (i % 64)
}

func (self *ValueSet) remove(i uint32) {
    if i / 64 < uint32(len(self.bits)) {
        self.bits[i / 64] &^= 1 << (i % 64)
    }
}

func (self *ValueSet) contains(i uint32) bool {
    return i / 64 < uint32(len(self.bits)) && self.bits[i / 64] & (1 << (i % 64)) != 0
}

// union merges other into self, reporting whether self changed.
func (self *ValueSet) union(other *ValueSet) bool {
    changed := false
    for len(self.bits) < len(other.bits) {
        self.bits = append(self.bits, 0)
    }
    for i, w := range other.bits {
        if self.bits[i] | w != self.bits[i] {
            self.bits[i] |= w
            changed = true
        }
    }
    return changed
}

func (self *ValueSet) clone() *ValueSet {
    r := &ValueSet { bits: make([]uint64, len(self.bits)) }
    copy(r.bits, self.bits)
    return r
}

func (self *ValueSet) forEach(fn func(i uint32)) {
    for wi, w := range self.bits {
        for w != 0 {
            b := bits.TrailingZeros64(w)
            fn(uint32(wi * 64 + b))
            w &= w - 1
        }
    }
}
