//  wal implements redo logging over a circular region of the device
//
//  The log occupies sectors [LogStart, LogStart+L). Positions are logical and
//  only ever grow; position p lives in sector LogStart + p%L.
//
//  [ installed | awaiting write-back | being logged | free ]
//               ^                     ^              ^
//               tail (=checkpoint)    head           reserved
//
//  A committed transaction is logged as one record of count+2 sectors: a
//  record header listing the home sectors, the count data sectors, and a commit
//  sector carrying a checksum of everything before it. Sector 0 holds the log
//  header, which records head and checkpoint along with the device geometry.
package wal

import (
	"errors"

	"github.com/mit-pdos/go-ptree/common"
)

const (
	HDRMAGIC    uint64 = 0x70747265652d6c67 // log header
	RECMAGIC    uint64 = 0x70747265652d7263 // record header
	COMMITMAGIC uint64 = 0x70747265652d636d // commit sector

	// record header words before the sector list: magic, pos, count, tid
	RECMETA = uint64(4)
	// MaxWrites is the largest number of sectors one transaction may write.
	MaxWrites = common.SectorSize/8 - RECMETA
)

// ErrBadRecord ends the recovery scan.
var ErrBadRecord = errors.New("invalid log record")

// ErrClosed is returned by operations on a log that has shut down.
var ErrClosed = errors.New("log is shut down")

// ErrNotFormatted is returned when sector 0 does not hold a log header.
var ErrNotFormatted = errors.New("device is not formatted")
