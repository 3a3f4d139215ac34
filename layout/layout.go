// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package layout describes blocked layouts of tensors and buffers and emits
// the operations converting flat values to and from these layouts.
//
// A layout is described by the axes of the flat value being tiled
// (InnerDimsPos), the size of the tiles (Tiles) and an optional
// permutation of the outer axes (OuterDimsPerm). Packing a value of
// rank R gives a value of rank R+len(Tiles). The leading R axes are the
// outer axes, that is the number of tiles along each axis, in the order
// given by the permutation. The trailing axes are the tiles.
package layout

import (
	"fmt"
	"slices"

	"github.com/gx-org/tpp/ir"
	"github.com/gx-org/tpp/ir/affine"
	"github.com/pkg/errors"
)

// Descriptor describes a blocked layout.
type Descriptor struct {
	InnerDimsPos  []int
	OuterDimsPerm []int
	Tiles         []int
}

// NCnc tiles both axes of a 2D value: [N][C] -> [N/n][C/c][n][c].
func NCnc(n, c int) Descriptor {
	return Descriptor{InnerDimsPos: []int{0, 1}, Tiles: []int{n, c}}
}

// KCck tiles both axes of a 2D value and swaps the outer axes: [K][C] -> [C/c][K/k][k][c].
func KCck(k, c int) Descriptor {
	return Descriptor{InnerDimsPos: []int{0, 1}, OuterDimsPerm: []int{1, 0}, Tiles: []int{k, c}}
}

// VNNI interleaves consecutive rows of a 2D value: [K][N] -> [K/v][N][v].
func VNNI(v int) Descriptor {
	return Descriptor{InnerDimsPos: []int{0}, Tiles: []int{v}}
}

// NCHWc tiles the channels of an image: [N][C][H][W] -> [N][C/c][H][W][c].
func NCHWc(c int) Descriptor {
	return Descriptor{InnerDimsPos: []int{1}, Tiles: []int{c}}
}

// NKPQk tiles the channels of an image with channels last: [N][P][Q][K] -> [N][K/k][P][Q][k].
func NKPQk(k int) Descriptor {
	return Descriptor{InnerDimsPos: []int{3}, OuterDimsPerm: []int{0, 3, 1, 2}, Tiles: []int{k}}
}

// KCRSck tiles the channels of a filter: [K][C][R][S] -> [K/k][C/c][R][S][c][k].
func KCRSck(c, k int) Descriptor {
	return Descriptor{InnerDimsPos: []int{1, 0}, Tiles: []int{c, k}}
}

// RSCKToKCRSck tiles the channels of a filter with channels last: [R][S][C][K] -> [K/k][C/c][R][S][c][k].
func RSCKToKCRSck(c, k int) Descriptor {
	return Descriptor{InnerDimsPos: []int{2, 3}, OuterDimsPerm: []int{3, 2, 0, 1}, Tiles: []int{c, k}}
}

// Validate checks that the descriptor can be applied to a value of a given rank.
func (d Descriptor) Validate(rank int) error {
	if len(d.InnerDimsPos) != len(d.Tiles) {
		return errors.Errorf("layout %s: %d inner axes for %d tiles", d, len(d.InnerDimsPos), len(d.Tiles))
	}
	seen := make(map[int]bool)
	for _, pos := range d.InnerDimsPos {
		if pos < 0 || pos >= rank {
			return errors.Errorf("layout %s: inner axis %d out of range for rank %d", d, pos, rank)
		}
		if seen[pos] {
			return errors.Errorf("layout %s: inner axis %d tiled more than once", d, pos)
		}
		seen[pos] = true
	}
	for _, tile := range d.Tiles {
		if tile <= 0 {
			return errors.Errorf("layout %s: tile sizes must be positive", d)
		}
	}
	if len(d.OuterDimsPerm) == 0 {
		return nil
	}
	if len(d.OuterDimsPerm) != rank || !affine.IsPermutationVector(d.OuterDimsPerm) {
		return errors.Errorf("layout %s: outer permutation is not a permutation of %d axes", d, rank)
	}
	return nil
}

// Divides returns true if all tiles divide the length of the axis they tile.
// Axes with an unknown length are never divided.
func (d Descriptor) Divides(shape []int) bool {
	for j, pos := range d.InnerDimsPos {
		if pos >= len(shape) {
			return false
		}
		ext := shape[pos]
		if ext == ir.DynamicSize || ext%d.Tiles[j] != 0 {
			return false
		}
	}
	return true
}

func (d Descriptor) tileOf(axis int) (int, bool) {
	i := slices.Index(d.InnerDimsPos, axis)
	if i < 0 {
		return 0, false
	}
	return d.Tiles[i], true
}

// Interchange returns a vector v such that v[i] = vec[perm[i]].
// vec is returned unchanged if perm is empty.
func Interchange[T any](vec []T, perm []int) []T {
	if len(perm) == 0 {
		return slices.Clone(vec)
	}
	out := make([]T, len(perm))
	for i, p := range perm {
		out[i] = vec[p]
	}
	return out
}

// PackedShape returns the shape of a value once packed.
func (d Descriptor) PackedShape(shape []int) ([]int, error) {
	if err := d.Validate(len(shape)); err != nil {
		return nil, err
	}
	outer := slices.Clone(shape)
	for axis, ext := range shape {
		tile, ok := d.tileOf(axis)
		if !ok || ext == ir.DynamicSize {
			continue
		}
		outer[axis] = (ext + tile - 1) / tile
	}
	return append(Interchange(outer, d.OuterDimsPerm), d.Tiles...), nil
}

// PackedType returns the type of a value once packed.
func (d Descriptor) PackedType(tp ir.Type) (ir.Type, error) {
	shape, err := d.PackedShape(tp.Dims())
	if err != nil {
		return ir.Type{}, err
	}
	return tp.WithDims(shape), nil
}

// BlockedIndexMap returns the map computing the coordinates of an element
// in the flat layout from its coordinates in the blocked layout.
// Each tiled axis is computed as outer*tile+inner.
func (d Descriptor) BlockedIndexMap(rank int) (affine.Map, error) {
	if err := d.Validate(rank); err != nil {
		return affine.Map{}, err
	}
	outerPos := make([]int, rank)
	for i := range outerPos {
		outerPos[i] = i
	}
	if len(d.OuterDimsPerm) > 0 {
		outerPos = affine.InversePermutationVector(d.OuterDimsPerm)
	}
	results := make([]affine.Expr, rank)
	for axis := range results {
		outer := affine.Dim(outerPos[axis])
		j := slices.Index(d.InnerDimsPos, axis)
		if j < 0 {
			results[axis] = outer
			continue
		}
		results[axis] = affine.Add(affine.Mul(outer, d.Tiles[j]), affine.Dim(rank+j))
	}
	return affine.NewMap(rank+len(d.Tiles), results...), nil
}

// Equal returns true if two descriptors are the same.
func (d Descriptor) Equal(o Descriptor) bool {
	return slices.Equal(d.InnerDimsPos, o.InnerDimsPos) &&
		slices.Equal(d.OuterDimsPerm, o.OuterDimsPerm) &&
		slices.Equal(d.Tiles, o.Tiles)
}

// IsIdentity returns true if the descriptor does not change the layout.
func (d Descriptor) IsIdentity() bool {
	if len(d.Tiles) > 0 {
		return false
	}
	for i, p := range d.OuterDimsPerm {
		if i != p {
			return false
		}
	}
	return true
}

func (d Descriptor) String() string {
	if len(d.OuterDimsPerm) == 0 {
		return fmt.Sprintf("{inner=%v tiles=%v}", d.InnerDimsPos, d.Tiles)
	}
	return fmt.Sprintf("{inner=%v outer=%v tiles=%v}", d.InnerDimsPos, d.OuterDimsPerm, d.Tiles)
}
