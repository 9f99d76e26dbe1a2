package parity

import (
	"github.com/hn4dev/hn4/internal/hal"
	"github.com/hn4dev/hn4/internal/herr"
	"github.com/hn4dev/hn4/internal/types"
)

// stripeBytes returns the number of bytes in one stripe unit on dev.
func (a *Array) stripeBytes(dev hal.Device) uint32 {
	return uint32(a.stripeUnit) * dev.SectorSize()
}

// readColumn reads stripe row r's unit from physical column phys. A HW_IO
// error or block-header CRC mismatch is reported as an error so the caller
// can fold the column into the failure census rather than panicking on
// corrupt data.
func (a *Array) readColumn(h *hal.Handle, row uint64, phys int) ([]byte, error) {
	if !a.isOnline(phys) {
		return nil, herr.New(herr.ErrHwIO, "readColumn", "", "column offline")
	}
	a.pin(phys)
	defer a.unpin(phys)
	dev := a.members[phys].dev
	lba := a.columnBase + types.Addr(row*a.stripeUnit)
	buf := make([]byte, a.stripeBytes(dev))
	res := h.SyncIO(dev, &hal.Request{Op: hal.OpRead, LBA: lba, Buffer: buf})
	if res.Err != nil {
		return nil, herr.New(herr.ErrHwIO, "readColumn", "", res.Err.Error())
	}
	return buf, nil
}

// readDataColumnVerified reads a data column and validates its block
// header: magic, header CRC, and payload CRC (§4.7 "Silent corruption
// recovery"). Any mismatch is treated the same as a HAL I/O error: the
// column is transiently failed for this op.
func (a *Array) readDataColumnVerified(h *hal.Handle, row uint64, phys int) ([]byte, error) {
	buf, err := a.readColumn(h, row, phys)
	if err != nil {
		return nil, err
	}
	hdr, payload, derr := types.DeserializeBlockHeader(buf)
	if derr != nil || hdr.Magic != types.BlockHeaderMagic {
		return nil, herr.New(herr.ErrDataRot, "readDataColumnVerified", "", "block header invalid")
	}
	if !hdr.VerifyHeaderCRC(buf) {
		return nil, herr.New(herr.ErrDataRot, "readDataColumnVerified", "", "header CRC mismatch")
	}
	if !hdr.VerifyPayloadCRC(payload) {
		return nil, herr.New(herr.ErrDataRot, "readDataColumnVerified", "", "payload CRC mismatch")
	}
	return buf, nil
}

// writeColumn writes buf (a full stripe unit) to physical column phys at
// row r, if that column is currently online. Offline columns are silently
// skipped (§4.7 "degraded write... P or Q is simply skipped on write").
func (a *Array) writeColumn(h *hal.Handle, row uint64, phys int, buf []byte) error {
	if !a.isOnline(phys) {
		return nil
	}
	a.pin(phys)
	defer a.unpin(phys)
	dev := a.members[phys].dev
	lba := a.columnBase + types.Addr(row*a.stripeUnit)
	res := h.SyncIO(dev, &hal.Request{Op: hal.OpWrite, LBA: lba, Buffer: buf})
	if res.Err != nil {
		return herr.New(herr.ErrHwIO, "writeColumn", "", res.Err.Error())
	}
	return nil
}
