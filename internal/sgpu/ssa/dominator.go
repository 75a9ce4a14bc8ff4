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
    `sort`
)

type _LtNode struct {
    semi     int
    node     *BasicBlock
    dom      *_LtNode
    label    *_LtNode
    parent   *_LtNode
    ancestor *_LtNode
    pred     []*_LtNode
    bucket   map[*_LtNode]struct{}
}

// _LengauerTarjan computes immediate dominators with the classic
// Lengauer-Tarjan algorithm with simple path compression.
type _LengauerTarjan struct {
    nodes []*_LtNode
    vertex map[int]int
}

func newLengauerTarjan() *_LengauerTarjan {
    return &_LengauerTarjan {
        vertex: make(map[int]int),
    }
}

func (self *_LengauerTarjan) dfs(bb *BasicBlock) {
    i := len(self.nodes)
    self.vertex[bb.Id] = i

    /* create the node */
    p := &_LtNode {
        semi   : i,
        node   : bb,
        bucket : make(map[*_LtNode]struct{}),
    }

    /* add to node list */
    p.label = p
    self.nodes = append(self.nodes, p)

    /* visit all the successors */
    for _, s := range bb.Succ {
        idx, ok := self.vertex[s.Id]

        /* not visited yet */
        if !ok {
            self.dfs(s)
            idx = self.vertex[s.Id]
            self.nodes[idx].parent = p
        }

        /* add as predecessor */
        q := self.nodes[idx]
        q.pred = append(q.pred, p)
    }
}

func (self *_LengauerTarjan) eval(p *_LtNode) *_LtNode {
    if p.ancestor == nil {
        return p
    } else {
        self.compress(p)
        return p.label
    }
}

func (self *_LengauerTarjan) compress(p *_LtNode) {
    if p.ancestor.ancestor != nil {
        self.compress(p.ancestor)
        if p.ancestor.label.semi < p.label.semi {
            p.label = p.ancestor.label
        }
        p.ancestor = p.ancestor.ancestor
    }
}

func (self *_LengauerTarjan) link(p *_LtNode, q *_LtNode) {
    q.ancestor = p
}

// updateDominatorTree rebuilds cfg.DominatedBy and cfg.DominatorOf from the
// current block graph.
func updateDominatorTree(cfg *CFG) {
    lt := newLengauerTarjan()
    lt.dfs(cfg.Root)

    /* Step 2 and 3 of the algorithm, in reverse pre-order */
    for i := len(lt.nodes) - 1; i > 0; i-- {
        p := lt.nodes[i]

        /* semi-dominator of p */
        for _, v := range p.pred {
            q := lt.eval(v)
            if q.semi < p.semi {
                p.semi = q.semi
            }
        }

        /* add to the bucket of its semi-dominator */
        sd := lt.nodes[p.semi]
        sd.bucket[p] = struct{}{}

        /* link into the forest */
        lt.link(p.parent, p)

        /* implicit or explicit dominators of the parent's bucket */
        for v := range p.parent.bucket {
            if q := lt.eval(v); q.semi < v.semi {
                v.dom = q
            } else {
                v.dom = p.parent
            }
        }

        /* clear the bucket */
        for v := range p.parent.bucket {
            delete(p.parent.bucket, v)
        }
    }

    /* Step 4: fill in implicit dominators; the comparison is on node
     * identity, a node whose dominator is not the vertex of its own
     * semidominator inherits the dominator of that node */
    for i := 1; i < len(lt.nodes); i++ {
        if p := lt.nodes[i]; p.dom != lt.nodes[p.semi] {
            p.dom = p.dom.dom
        }
    }

    /* build the immediate dominator map */
    cfg.DominatedBy = make(map[int]*BasicBlock, len(lt.nodes))
    cfg.DominatorOf = make(map[int][]*BasicBlock, len(lt.nodes))
    cfg.DominatedBy[cfg.Root.Id] = cfg.Root

    /* root dominates itself, everything else by its idom */
    for i := 1; i < len(lt.nodes); i++ {
        p := lt.nodes[i]
        d := p.dom.node
        cfg.DominatedBy[p.node.Id] = d
        cfg.DominatorOf[d.Id] = append(cfg.DominatorOf[d.Id], p.node)
    }

    /* sort the dominated blocks for deterministic traversal */
    for _, bb := range cfg.DominatorOf {
        sort.Slice(bb, func(i int, j int) bool {
            return bb[i].Id < bb[j].Id
        })
    }
}
