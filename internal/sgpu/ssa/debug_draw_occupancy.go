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
    `os`

    `github.com/ajstarks/svgo`
)

// drawOccupancy renders the register file over the program as an SVG: one
// column per 16-bit unit, one row per instruction, a filled cell where the
// unit holds a value. Runs after assignment, so operands are registers and
// kill flags mark last reads.
func drawOccupancy(cfg *CFG, fn string) {
    maxi := 0
    rows := 0
    nreg := int(cfg.MaxReg) + 1
    for _, b := range cfg.Blocks {
        rows += len(b.Ins) + 1
        for _, v := range b.Ins {
            if s := v.String(); len(s) > maxi {
                maxi = len(s)
            }
        }
    }
    insw := maxi * 9 + 120
    fp, err := os.OpenFile(fn, os.O_RDWR | os.O_CREATE | os.O_TRUNC, 0644)
    if err != nil {
        panic(err)
    }
    p := svg.New(fp)
    p.Start(nreg * 12 + insw + 100, rows * 24 + 100)
    if _, err = fp.WriteString(`<rect width="100%" height="100%" fill="white" />` + "\n"); err != nil {
        panic(err)
    }
    for i := 0; i < nreg; i++ {
        x := insw + i * 12 + 50
        p.Text(x, 70, fmt.Sprintf("r%d", i), "fill:gray;font-size:10px;font-family:monospace;text-anchor:middle")
    }
    live := make([]bool, nreg)
    row := 0
    for _, b := range cfg.Blocks {
        p.Text(16, 100 + row * 24, fmt.Sprintf("bb_%d", b.Id), "fill:gray;font-size:16px;font-family:monospace")
        p.Line(10, 84 + row * 24, insw + 5, 84 + row * 24, "stroke:lightgray")
        for i := range live {
            live[i] = false
        }
        for _, v := range b.Ins {
            h := 95 + row * 24
            p.Text(insw, 100 + row * 24, v.String(), "fill:black;font-size:16px;font-family:monospace;text-anchor:end")
            p.Line(insw + 10, h, nreg * 12 + insw + 50, h, "stroke:lightgray")

            /* kills end a span, writes start one */
            eachRegOperand(v, func(idx Index, isDest bool) {
                if idx.Memory {
                    return
                }
                for j := idx.Value; j < idx.Value + uint32(idx.Width()) && int(j) < nreg; j++ {
                    if isDest {
                        live[j] = true
                    } else if idx.Kill {
                        live[j] = false
                    }
                }
            })
            for i, on := range live {
                if on {
                    x := insw + i * 12 + 50
                    p.Circle(x, h, 3, "fill:black;stroke:black")
                }
            }
            row++
        }
        row++
    }
    p.End()
    if err = fp.Close(); err != nil {
        panic(err)
    }
}

func eachRegOperand(p *Instr, fn func(idx Index, isDest bool)) {
    if p.Op == OpParallelCopy {
        for _, c := range p.Copies {
            if c.Src.Type == IndexRegister {
                fn(c.Src, false)
            }
            d := registerLike(c.Dest, c.Src)
            d.Memory = c.DestMem
            fn(d, true)
        }
        return
    }
    for _, s := range p.Src {
        if s.Type == IndexRegister {
            fn(s, false)
        }
    }
    for _, d := range p.Dest {
        if d.Type == IndexRegister {
            fn(d, true)
        }
    }
}
