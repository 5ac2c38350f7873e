package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mit-pdos/go-ptree/common"
	"github.com/mit-pdos/go-ptree/flatfs"
	"github.com/mit-pdos/go-ptree/jrnl"
	"github.com/mit-pdos/go-ptree/obj"
	"github.com/mit-pdos/go-ptree/ptree"
	"github.com/mit-pdos/go-ptree/util"
	"github.com/mit-pdos/go-ptree/wal"
)

// blocks written per transaction by the write command
const writeChunkBlocks = 32

func parseInum(s string) (flatfs.Inum, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad tree id %q", common.ErrInvalidArgument, s)
	}
	return flatfs.Inum(n), nil
}

func parseOffset(args []string, i int) (uint64, error) {
	if len(args) <= i {
		return 0, nil
	}
	return strconv.ParseUint(args[i], 10, 64)
}

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Create an empty logged disk and tree store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.logger.Sync()
		d, err := e.openDisk(true)
		if err != nil {
			return err
		}
		defer d.Close()
		layout, err := jrnl.Format(d, e.opts())
		if err != nil {
			return err
		}
		color.Green("formatted %s", e.cfg.DiskPath)
		fmt.Fprintln(cmd.OutOrStdout(), layout)
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Dump the on-disk log header and layout without recovering",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		d, err := e.openDisk(false)
		if err != nil {
			return err
		}
		defer d.Close()
		sio, err := obj.MkIO(d, e.cfg.Workers)
		if err != nil {
			return err
		}
		defer sio.Close()
		h, err := wal.ReadHeader(sio)
		if err != nil {
			return err
		}
		layout, err := h.Layout()
		if err != nil {
			return err
		}
		color.Cyan("header")
		spew.Dump(h)
		color.Cyan("layout")
		spew.Dump(layout)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Recover the disk and report store parameters and log state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()

		rec := s.log.Recovery()
		if rec.Discarded {
			color.Yellow("recovery discarded a torn record after position %d", rec.End)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "recovered %d records (%d sectors)\n", rec.Records, rec.Sectors)
		for _, p := range ptree.Params() {
			v, err := s.fs.QueryParam(p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-14s %d\n", p, v)
		}
		st := s.log.Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "log            %d/%d sectors used, %d queued\n",
			st.Occupied(), st.LogSectors, st.Queued)
		fmt.Fprintf(cmd.OutOrStdout(), "device         %d sectors in flight\n", st.Outstanding)
		if st.WriteBackErr != nil {
			color.Red("write-back stopped: %v", st.WriteBackErr)
		}
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an empty tree and print its id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()
		var inum flatfs.Inum
		err = s.atomically(func(tid jrnl.TransId) error {
			inum, err = s.fs.CreateFile(tid)
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), inum)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm TREE",
	Short: "Delete a tree and free its blocks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inum, err := parseInum(args[0])
		if err != nil {
			return err
		}
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()
		var found bool
		err = s.atomically(func(tid jrnl.TransId) error {
			found, err = s.fs.DeleteFile(tid, inum)
			return err
		})
		if err != nil {
			return err
		}
		if !found {
			color.Yellow("tree %d does not exist", inum)
		}
		return nil
	},
}

var writeCmd = &cobra.Command{
	Use:   "write TREE [OFFSET]",
	Short: "Write stdin into a tree at a byte offset",
	Long: `write copies stdin into the tree. Large inputs are split into several
transactions, so a failure can leave a prefix written.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		inum, err := parseInum(args[0])
		if err != nil {
			return err
		}
		off, err := parseOffset(args, 1)
		if err != nil {
			return err
		}
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()
		chunk := writeChunkBlocks * common.BlockSize
		for len(data) > 0 {
			n := util.Min(uint64(len(data)), chunk)
			err := s.atomically(func(tid jrnl.TransId) error {
				_, err := s.fs.Write(tid, inum, off, data[:n])
				return err
			})
			if err != nil {
				return err
			}
			off += n
			data = data[n:]
		}
		return nil
	},
}

var catCmd = &cobra.Command{
	Use:   "cat TREE",
	Short: "Print a tree's contents up to its last allocated block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inum, err := parseInum(args[0])
		if err != nil {
			return err
		}
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.close()
		tid := s.fs.Begin()
		defer s.fs.Abort(tid)
		size, err := s.fs.Size(tid, inum)
		if err != nil {
			return err
		}
		buf := make([]byte, common.BlockSize)
		for off := uint64(0); off < size; off += common.BlockSize {
			if _, err := s.fs.Read(tid, inum, off, buf); err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(buf); err != nil {
				return err
			}
		}
		return nil
	},
}
