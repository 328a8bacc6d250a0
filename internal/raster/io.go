package raster

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// On-disk grid encoding: a fixed little-endian header followed by the value
// and mask planes. The format is deterministic: writing the same grid twice
// produces byte-identical files, which is what makes the derivation
// idempotence contract checkable at the file level.
//
//	magic   [4]byte "UCG1"
//	width   uint32
//	height  uint32
//	originX float64
//	originY float64
//	cell    float64
//	crsLen  uint16, crs bytes
//	values  width*height float64 (nodata cells encoded as 0)
//	mask    width*height bytes (1 = nodata)
var gridMagic = [4]byte{'U', 'C', 'G', '1'}

// WriteGrid encodes g to w.
func WriteGrid(w io.Writer, g *Grid) error {
	if err := g.validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(gridMagic[:]); err != nil {
		return err
	}
	for _, v := range []any{uint32(g.Width), uint32(g.Height), g.OriginX, g.OriginY, g.CellSize} {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	crs := []byte(g.CRS)
	if len(crs) > math.MaxUint16 {
		return fmt.Errorf("raster: CRS string too long (%d bytes)", len(crs))
	}
	if err := binary.Write(bw, binary.LittleEndian, uint16(len(crs))); err != nil {
		return err
	}
	if _, err := bw.Write(crs); err != nil {
		return err
	}
	for i, v := range g.Values {
		if g.mask[i] {
			v = 0
		}
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	maskBytes := make([]byte, len(g.mask))
	for i, m := range g.mask {
		if m {
			maskBytes[i] = 1
		}
	}
	if _, err := bw.Write(maskBytes); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadGrid decodes a grid from r.
func ReadGrid(r io.Reader) (*Grid, error) {
	br := bufio.NewReader(r)

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("raster: read header: %w", err)
	}
	if magic != gridMagic {
		return nil, fmt.Errorf("raster: bad magic %q", magic)
	}

	var width, height uint32
	var originX, originY, cell float64
	for _, v := range []any{&width, &height, &originX, &originY, &cell} {
		if err := binary.Read(br, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("raster: read header: %w", err)
		}
	}
	var crsLen uint16
	if err := binary.Read(br, binary.LittleEndian, &crsLen); err != nil {
		return nil, fmt.Errorf("raster: read header: %w", err)
	}
	crs := make([]byte, crsLen)
	if _, err := io.ReadFull(br, crs); err != nil {
		return nil, fmt.Errorf("raster: read CRS: %w", err)
	}

	if width == 0 || height == 0 || uint64(width)*uint64(height) > 1<<30 {
		return nil, fmt.Errorf("raster: implausible shape %dx%d", width, height)
	}

	g := New(int(width), int(height), originX, originY, cell, string(crs))
	if err := binary.Read(br, binary.LittleEndian, g.Values); err != nil {
		return nil, fmt.Errorf("raster: read values: %w", err)
	}
	maskBytes := make([]byte, len(g.mask))
	if _, err := io.ReadFull(br, maskBytes); err != nil {
		return nil, fmt.Errorf("raster: read mask: %w", err)
	}
	for i, b := range maskBytes {
		g.mask[i] = b != 0
	}
	return g, nil
}

// ReadGridFile loads a grid from path.
func ReadGridFile(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadGrid(f)
}
