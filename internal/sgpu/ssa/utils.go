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

// nextPow2 rounds v up to the next power of two. Both the demand estimator
// and the allocator round widths through this single helper so the two
// always agree on allocation footprints.
func nextPow2(v uint32) uint32 {
    if v <= 1 {
        return 1
    } else {
        return 1 << (32 - bits.LeadingZeros32(v - 1))
    }
}

// alignPot aligns v up to the power-of-two boundary a.
func alignPot(v uint32, a uint32) uint32 {
    return (v + a - 1) &^ (a - 1)
}

// roundDown aligns v down to the power-of-two boundary a.
func roundDown(v uint32, a uint32) uint32 {
    return v &^ (a - 1)
}

func minu(a uint32, b uint32) uint32 {
    if a < b {
        return a
    } else {
        return b
    }
}

func maxu(a uint32, b uint32) uint32 {
    if a > b {
        return a
    } else {
        return b
    }
}
