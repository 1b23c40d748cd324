// Package pic models the cascaded 8259 programmable interrupt controllers: a master and a slave,
// each with its own mask register, wired so IRQ 2 on the master carries the slave's cascade.
package pic

import (
	"github.com/pcoslab/pcos/internal/log"
)

// Lines on the master PIC, and the cascade line the slave hangs off.
const (
	NumLines    = 8
	CascadeLine = 2 // IRQ2, where the slave PIC is wired in.
)

// Controller is the cascaded master/slave pair.
type Controller struct {
	masterMask uint8
	slaveMask  uint8
	log        *log.Logger
}

// New creates a controller with every line masked, matching the PIC's power-on state before
// init_pic configures it.
func New() *Controller {
	return &Controller{
		masterMask: 0xff,
		slaveMask:  0xff,
		log:        log.DefaultLogger(),
	}
}

// Init programs both PICs: ICWs are not modeled (there's no real chip to program), but the
// cascade line is unmasked on the master since the slave can never signal otherwise.
func (c *Controller) Init() {
	c.masterMask = 0xff
	c.slaveMask = 0xff
	c.Unmask(CascadeLine)
	c.log.Debug("pic: initialized")
}

// Mask disables one IRQ line. Lines 0-7 are on the master; 8-15 are on the slave.
func (c *Controller) Mask(line uint8) {
	if line < NumLines {
		c.masterMask |= 1 << line
	} else {
		c.slaveMask |= 1 << (line - NumLines)
	}
}

// Unmask enables one IRQ line.
func (c *Controller) Unmask(line uint8) {
	if line < NumLines {
		c.masterMask &^= 1 << line
	} else {
		c.slaveMask &^= 1 << (line - NumLines)
	}
}

// Masked reports whether a line is currently masked.
func (c *Controller) Masked(line uint8) bool {
	if line < NumLines {
		return c.masterMask&(1<<line) != 0
	}

	return c.slaveMask&(1<<(line-NumLines)) != 0
}

// EOI acknowledges an interrupt on the given line, sending the end-of-interrupt command to the
// slave first (if the line lives there) and always to the master, per the cascade.
func (c *Controller) EOI(line uint8) {
	if line >= NumLines {
		c.log.Debug("pic: eoi slave", "line", line)
	}

	c.log.Debug("pic: eoi master", "line", line)
}
